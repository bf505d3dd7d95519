package job

// FrameFormat is the image format used for extracted frames.
type FrameFormat string

const (
	FrameFormatPNG FrameFormat = "png"
	FrameFormatJPG FrameFormat = "jpg"
)

// Encoder is an ffmpeg video encoder accepted for output assembly.
type Encoder string

const (
	EncoderX264   Encoder = "libx264"
	EncoderX265   Encoder = "libx265"
	EncoderVP9    Encoder = "libvpx-vp9"
	EncoderH264NV Encoder = "h264_nvenc"
	EncoderHEVCNV Encoder = "hevc_nvenc"
)

// DefaultEncoder is used when a request does not name one.
const DefaultEncoder = EncoderX264

// DefaultFPS is the frame rate used when the target's rate is not kept or cannot be detected.
const DefaultFPS = 30.0

// Encoders lists every supported encoder.
var Encoders = []Encoder{EncoderX264, EncoderX265, EncoderVP9, EncoderH264NV, EncoderHEVCNV}

// HardwareAccelerated reports whether the encoder runs on NVENC.
// NVENC encoders take -cq instead of -crf.
func (e Encoder) HardwareAccelerated() bool {
	return e == EncoderH264NV || e == EncoderHEVCNV
}

// Options holds the tunables of one job. Zero values are not defaults;
// start from DefaultOptions.
type Options struct {
	KeepFPS               bool        `json:"keep_fps"`
	KeepFrames            bool        `json:"keep_frames"`
	SkipAudio             bool        `json:"skip_audio"`
	ManyFaces             bool        `json:"many_faces"`
	ReferenceFacePosition int         `json:"reference_face_position" validate:"gte=0"`
	ReferenceFrameNumber  int         `json:"reference_frame_number" validate:"gte=0"`
	SimilarFaceDistance   float64     `json:"similar_face_distance" validate:"gte=0"`
	TempFrameFormat       FrameFormat `json:"temp_frame_format" validate:"oneof=png jpg"`
	TempFrameQuality      int         `json:"temp_frame_quality" validate:"gte=0,lte=100"`
	OutputVideoEncoder    Encoder     `json:"output_video_encoder" validate:"oneof=libx264 libx265 libvpx-vp9 h264_nvenc hevc_nvenc"`
	OutputVideoQuality    int         `json:"output_video_quality" validate:"gte=0,lte=100"`
	MaxMemoryGB           int         `json:"max_memory" validate:"gte=0"`
	ExecutionThreads      int         `json:"execution_threads" validate:"gte=1"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		KeepFPS:               true,
		KeepFrames:            false,
		SkipAudio:             false,
		ManyFaces:             false,
		ReferenceFacePosition: 0,
		ReferenceFrameNumber:  0,
		SimilarFaceDistance:   0.85,
		TempFrameFormat:       FrameFormatPNG,
		TempFrameQuality:      100,
		OutputVideoEncoder:    DefaultEncoder,
		OutputVideoQuality:    35,
		MaxMemoryGB:           60,
		ExecutionThreads:      8,
	}
}
