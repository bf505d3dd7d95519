package job

import "errors"

// Static errors for the job lifecycle. Results wrap exactly one of these.
var (
	// ErrInvalidRequest is returned when a request is missing paths, names unknown
	// processors or carries out-of-range options.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPreflightFailed is returned when a processor's PreCheck or PreStart fails.
	ErrPreflightFailed = errors.New("preflight failed")
	// ErrContentRejected is returned when the safety gate flags the target.
	ErrContentRejected = errors.New("content rejected")
	// ErrSafetyCheckFailed is returned when the safety classifier itself errors.
	ErrSafetyCheckFailed = errors.New("safety check failed")
	// ErrExtractionFailed is returned when frames cannot be extracted from the target.
	ErrExtractionFailed = errors.New("frame extraction failed")
	// ErrNoFrames is returned when extraction succeeds but yields zero frames.
	ErrNoFrames = errors.New("no frames")
	// ErrProcessingFailed is returned when a processor fails on the image or frame set.
	ErrProcessingFailed = errors.New("processing failed")
	// ErrAssemblyFailed is returned when frames cannot be encoded into a video.
	ErrAssemblyFailed = errors.New("video assembly failed")
	// ErrAudioRestoreFailed is returned when the original audio cannot be muxed back.
	ErrAudioRestoreFailed = errors.New("audio restore failed")
	// ErrPublishFailed is returned when the output cannot be uploaded.
	ErrPublishFailed = errors.New("publish failed")
)

// reasonFor maps an error to the short reason string carried by a Result.
func reasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return ReasonInvalidRequest
	case errors.Is(err, ErrNoFrames):
		return ReasonNoFrames
	case errors.Is(err, ErrContentRejected):
		return ReasonNSFW
	default:
		return err.Error()
	}
}
