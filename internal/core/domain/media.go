package domain

type VideoConstraints struct {
	Width      int    `json:"width" yaml:"width"`
	Height     int    `json:"height" yaml:"height"`
	FrameRate  int    `json:"frameRate" yaml:"frame_rate"`
	FacingMode string `json:"facingMode" yaml:"facing_mode"`
}

type AudioConstraints struct {
	EchoCancellation bool `json:"echoCancellation" yaml:"echo_cancellation"`
	NoiseSuppression bool `json:"noiseSuppression" yaml:"noise_suppression"`
	AutoGainControl  bool `json:"autoGainControl" yaml:"auto_gain_control"`
}

type MediaConstraints struct {
	Video VideoConstraints `json:"video" yaml:"video"`
	Audio AudioConstraints `json:"audio" yaml:"audio"`
}

// DefaultConstraints picks a capture profile; mobile devices get a reduced resolution.
func DefaultConstraints(mobile bool) MediaConstraints {
	c := MediaConstraints{
		Video: VideoConstraints{Width: 1280, Height: 720, FrameRate: 30, FacingMode: "user"},
		Audio: AudioConstraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true},
	}
	if mobile {
		c.Video.Width = 640
		c.Video.Height = 480
		c.Video.FrameRate = 24
	}
	return c
}
