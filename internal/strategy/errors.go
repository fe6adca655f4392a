package strategy

import (
	"errors"
	"fmt"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

var (
	// ErrPartialExecution means at least one leg was placed and at least one was not.
	ErrPartialExecution = errors.New("straddle partially executed")
	// ErrExecutionFailed means no leg was placed.
	ErrExecutionFailed = errors.New("straddle execution failed")
	// ErrRiskRejected is wrapped when a built leg breaches a risk limit.
	ErrRiskRejected = errors.New("rejected by risk limits")
)

// Stage names the planning step a leg failed in.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageQuote   Stage = "quote"
	StageBuild   Stage = "build"
	StageRisk    Stage = "risk"
)

// LegError is a planning failure attributed to one leg. No order was sent.
type LegError struct {
	Side  model.OptionSide
	Stage Stage
	Err   error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("straddle: %s leg: %s: %v", e.Side, e.Stage, e.Err)
}

func (e *LegError) Unwrap() error { return e.Err }

// SubmissionError is a broker rejection of one leg.
type SubmissionError struct {
	Side    model.OptionSide
	Request model.OrderRequest
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s leg %s: %v", e.Side, e.Request.TradingSymbol, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
