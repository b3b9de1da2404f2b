package qobuz

import "fmt"

// Quality is a Qobuz format id.
type Quality int

const (
	QualityMP3      Quality = 5  // MP3 320
	QualityLossless Quality = 6  // 16 bit, 44.1kHz
	QualityHiRes96  Quality = 7  // 24 bit, up to 96kHz
	QualityHiRes192 Quality = 27 // 24 bit, above 96kHz

	DefaultQuality = QualityLossless
)

// Valid reports whether q is one of the format ids the API accepts.
func (q Quality) Valid() bool {
	switch q {
	case QualityMP3, QualityLossless, QualityHiRes96, QualityHiRes192:
		return true
	}
	return false
}

func (q Quality) String() string {
	switch q {
	case QualityMP3:
		return "5 - MP3"
	case QualityLossless:
		return "6 - 16 bit, 44.1kHz"
	case QualityHiRes96:
		return "7 - 24 bit, <96kHz"
	case QualityHiRes192:
		return "27 - 24 bit, >96kHz"
	default:
		return fmt.Sprintf("%d - unknown", int(q))
	}
}

func (q Quality) extension() string {
	if q == QualityMP3 {
		return ".mp3"
	}
	return ".flac"
}
