package domain

// ProduceType identifies a media stream a user can publish:
// microphone audio, camera video, or their screen-share variants.
type ProduceType string

const (
	ProduceAudio       ProduceType = "audio"
	ProduceVideo       ProduceType = "video"
	ProduceScreenAudio ProduceType = "saudio"
	ProduceScreenVideo ProduceType = "svideo"
)

func (p ProduceType) Valid() bool {
	switch p {
	case ProduceAudio, ProduceVideo, ProduceScreenAudio, ProduceScreenVideo:
		return true
	}
	return false
}
