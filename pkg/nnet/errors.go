package nnet

import "errors"

var (
	ErrUnrecognizedLayerFormat = errors.New("nnet: unrecognized layer format")
	ErrUnknownHyperparameter   = errors.New("nnet: unknown hyperparameter")
	ErrShapeMismatch           = errors.New("nnet: shape mismatch")
)
