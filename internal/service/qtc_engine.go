package service

import (
	"math"

	"github.com/ecg-guardrail-server/internal/domain"
)

// Rate band in which Bazett is used as the primary correction.
const (
	bazettMinHR = 60.0
	bazettMaxHR = 100.0
)

const (
	rateWarningExtreme = "Heart rate outside 60-100 bpm: Bazett over-corrects at rate extremes, Fridericia used as primary."
	rateWarningBazett  = "Bazett correction unavailable for this rate, Fridericia used as primary."
)

// ComputeQTc corrects QT for rate using Bazett, Fridericia and Framingham.
// RR is authoritative when both RR and HR are given. Missing or non-positive
// QT, or no positive rate input, yields a result with every value absent.
func ComputeQTc(qt, hr, rr domain.Value) domain.QTcResult {
	qtMs, ok := qt.Get()
	if !ok || qtMs <= 0 {
		return domain.QTcResult{}
	}

	rrMs, ok := domain.IntervalSet{HRBpm: hr, RRMs: rr}.RateRR().Get()
	if !ok || rrMs <= 0 {
		return domain.QTcResult{}
	}

	heartRate := 60000.0 / rrMs
	result := domain.QTcResult{
		BazettMs:     roundMs(bazett(qtMs, rrMs)),
		FridericiaMs: roundMs(fridericia(qtMs, rrMs)),
		FraminghamMs: roundMs(framingham(qtMs, rrMs)),
		HeartRateBpm: domain.Some(math.Round(heartRate*10) / 10),
	}

	// Bazett can overflow where Fridericia does not, since sqrt(RR) < cbrt(RR)
	// for RR under one second.
	inBand := heartRate >= bazettMinHR && heartRate <= bazettMaxHR
	switch {
	case inBand && result.BazettMs.Valid():
		result.PrimaryFormula = domain.Bazett
		result.PrimaryQTcMs = result.BazettMs
	case inBand:
		result.PrimaryFormula = domain.Fridericia
		result.PrimaryQTcMs = result.FridericiaMs
		result.RateWarning = rateWarningBazett
	default:
		result.PrimaryFormula = domain.Fridericia
		result.PrimaryQTcMs = result.FridericiaMs
		result.RateWarning = rateWarningExtreme
	}

	return result
}

func bazett(qt, rr float64) float64 {
	return qt / math.Sqrt(rr/1000.0)
}

func fridericia(qt, rr float64) float64 {
	return qt / math.Cbrt(rr/1000.0)
}

func framingham(qt, rr float64) float64 {
	return 1000.0 * (qt/1000.0 + 0.154*(1.0-rr/1000.0))
}

// roundMs rounds to the nearest whole millisecond; non-finite results are absent.
func roundMs(v float64) domain.Value {
	return domain.Some(math.Round(v))
}
