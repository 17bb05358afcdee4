package bank

import (
	"context"
	"errors"
)

// ErrUnsolvable signals a soft captcha failure: the solver could not produce a
// usable answer for this image. The login attempt must restart with a fresh
// challenge rather than re-running recognition on the same image.
var ErrUnsolvable = errors.New("captcha unsolvable")

const captchaLength = 6

// CaptchaSolver turns a captcha image into its text. Implementations are
// selected once at client construction time.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// PredictFunc is a single-image text predictor, typically backed by a local
// inference model or an external OCR engine.
type PredictFunc func(ctx context.Context, image []byte) (string, error)

type modelSolver struct {
	predict PredictFunc
}

// NewModelSolver wraps a local inference model. Outputs whose length differs
// from the bank's fixed captcha length are rejected as unsolvable.
func NewModelSolver(predict PredictFunc) CaptchaSolver {
	return &modelSolver{predict: predict}
}

func (s *modelSolver) Solve(ctx context.Context, image []byte) (string, error) {
	text, err := s.predict(ctx, image)
	if err != nil {
		return "", err
	}
	if len(text) != captchaLength {
		return "", ErrUnsolvable
	}
	return text, nil
}

type engineSolver struct {
	recognize PredictFunc
}

// NewEngineSolver wraps an external OCR engine. Engine output is returned
// verbatim; the bank rejects bad answers itself.
func NewEngineSolver(recognize PredictFunc) CaptchaSolver {
	return &engineSolver{recognize: recognize}
}

func (s *engineSolver) Solve(ctx context.Context, image []byte) (string, error) {
	return s.recognize(ctx, image)
}

type customSolver struct {
	callback PredictFunc
}

// NewCustomSolver delegates to a caller-supplied callback, with the same
// length validation as the model solver.
func NewCustomSolver(callback PredictFunc) CaptchaSolver {
	return &customSolver{callback: callback}
}

func (s *customSolver) Solve(ctx context.Context, image []byte) (string, error) {
	text, err := s.callback(ctx, image)
	if err != nil {
		return "", err
	}
	if len(text) != captchaLength {
		return "", ErrUnsolvable
	}
	return text, nil
}
