package transport

import (
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// RTTEstimator smooths RTT samples and derives the retransmission timeout (RFC 6298)
type RTTEstimator struct {
	srtt    time.Duration
	rttvar  time.Duration
	rto     time.Duration
	sampled bool

	alpha float64
	beta  float64

	minRTO  time.Duration
	maxRTO  time.Duration
	backoff *utils.ExponentialBackoff
}

// NewRTTEstimator starts with the initial RTO and no samples
func NewRTTEstimator(initial, min, max time.Duration) *RTTEstimator {
	return &RTTEstimator{
		rto:     initial,
		alpha:   1.0 / 8.0,
		beta:    1.0 / 4.0,
		minRTO:  min,
		maxRTO:  max,
		backoff: utils.NewExponentialBackoff(min, max, 2),
	}
}

// Sample folds a measured round trip into the estimate
func (re *RTTEstimator) Sample(measured time.Duration) {
	if !re.sampled {
		re.sampled = true
		re.srtt = measured
		re.rttvar = measured / 2
	} else {
		diff := re.srtt - measured
		if diff < 0 {
			diff = -diff
		}
		re.rttvar = time.Duration(float64(re.rttvar)*(1-re.beta) + float64(diff)*re.beta)
		re.srtt = time.Duration(float64(re.srtt)*(1-re.alpha) + float64(measured)*re.alpha)
	}

	re.rto = re.srtt + 4*re.rttvar
	if re.rto < re.minRTO {
		re.rto = re.minRTO
	}
	if re.rto > re.maxRTO {
		re.rto = re.maxRTO
	}
}

// Backoff doubles the RTO up to the maximum
func (re *RTTEstimator) Backoff() {
	re.rto = re.backoff.Grow(re.rto)
}

// RTO returns the current retransmission timeout
func (re *RTTEstimator) RTO() time.Duration { return re.rto }

// SRTT returns the smoothed RTT, zero before the first sample
func (re *RTTEstimator) SRTT() time.Duration { return re.srtt }

// RTTVar returns the RTT variation
func (re *RTTEstimator) RTTVar() time.Duration { return re.rttvar }
