package ranging

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/physic"
)

// Result is the decoded outcome of one ranging cycle. DistanceCM is only
// meaningful when Status is StatusSuccess.
type Result struct {
	Status     Status
	DistanceCM float64
	// Line is the response as received, without the trailing newline.
	Line string
}

// Distance returns the measured distance in centimetres and whether the
// result carries one.
func (r Result) Distance() (float64, bool) {
	if r.Status != StatusSuccess {
		return 0, false
	}
	return r.DistanceCM, true
}

// Range returns the measured distance as a physic.Distance, or 0 when the
// result is not a success.
func (r Result) Range() physic.Distance {
	cm, ok := r.Distance()
	if !ok {
		return 0
	}
	return physic.Distance(math.Round(cm * 10 * float64(physic.MilliMetre)))
}

// String renders the caller-facing report: the status label, followed by the
// distance with two decimals on success.
func (r Result) String() string {
	if cm, ok := r.Distance(); ok {
		return fmt.Sprintf("%s %.2f cm", r.Status, cm)
	}
	return r.Status.String()
}

// Decode turns one response line into a Result. Responses of the wrong shape
// or with an unrecognised status resolve to StatusUnknown without error; only
// a success whose distance is not numeric fails, with a *DecodeError.
func Decode(line string) (Result, error) {
	line = strings.TrimRight(line, "\r\n")
	res := Result{Status: StatusUnknown, Line: line}

	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return res, nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return res, nil
	}
	res.Status = StatusFromCode(code)
	if res.Status != StatusSuccess {
		return res, nil
	}

	raw, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return res, &DecodeError{Line: line, Field: "distance", Err: err}
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return res, &DecodeError{Line: line, Field: "distance", Err: fmt.Errorf("non-finite value %v", raw)}
	}
	res.DistanceCM = raw / 100.0
	return res, nil
}
