package service

import (
	"errors"
	"fmt"
)

// Error taxonomy of the delivery pipeline. ErrConflict is a normal
// concurrency outcome (the CAS lost a race), never a failure.
var (
	ErrNotFound           = errors.New("invoice not found")
	ErrConflict           = errors.New("invoice status changed concurrently")
	ErrUnsupportedService = errors.New("unsupported service type")
	ErrGeneration         = errors.New("generation failed")
	ErrStorage            = errors.New("deliverable storage failed")
	ErrValidation         = errors.New("invalid payment or invoice data")

	ErrWrongNetwork = fmt.Errorf("%w: payment token or chain does not match the invoice", ErrValidation)
	ErrAmountTooLow = fmt.Errorf("%w: payment amount is below the invoice amount", ErrValidation)
)
