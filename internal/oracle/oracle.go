// Package oracle defines the external face/pose/blink collaborators
// consumed (never implemented) by the liveness pipeline, modeled as
// small injectable capabilities. Production wiring talks to a separate
// inference service; tests inject DeterministicFace and DeterministicPose.
package oracle

import (
	"context"
	"errors"

	"github.com/technosupport/canteen-authz/internal/domain"
)

var (
	ErrFaceNotFound      = errors.New("FACE_NOT_FOUND")
	ErrMultipleFaces     = errors.New("MULTIPLE_FACES")
	ErrFaceTooSmall      = errors.New("FACE_TOO_SMALL")
	ErrLowLight          = errors.New("LOW_LIGHT")
	ErrBlurry            = errors.New("BLURRY")
	ErrNoFaceEncoding    = errors.New("NO_FACE_ENCODING")
)

// Frame is the decoded representation of a submitted image; opaque to the
// Session Manager beyond being passed back into the oracle calls.
type Frame struct {
	Raw []byte
}

// Detection is the oracle's answer to "what face, if any, is in this frame".
type Detection struct {
	Embedding [domain.FaceEmbeddingDim]float32
}

// PoseBlink is the oracle's per-frame pose/blink estimate.
type PoseBlink struct {
	Pose  domain.Pose
	Blink bool
}

// Face is the external face-detection/embedding collaborator.
type Face interface {
	Decode(ctx context.Context, imageBytes []byte) (Frame, error)
	DetectAndEncode(ctx context.Context, f Frame) (Detection, error)
}

// PoseEstimator is the external head-pose/blink collaborator.
type PoseEstimator interface {
	EstimatePoseAndBlink(ctx context.Context, f Frame) (PoseBlink, error)
}
