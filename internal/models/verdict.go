package models

import "sort"

type DuplicateReason string

const (
	ReasonNone          DuplicateReason = "none"
	ReasonFileID        DuplicateReason = "file_id"
	ReasonDuration      DuplicateReason = "duration"
	ReasonTooManyVideos DuplicateReason = "too_many_videos"
)

func (r DuplicateReason) String() string {
	return string(r)
}

type AnomalyLabel string

const (
	AnomalyUnusualDuration   AnomalyLabel = "unusual_duration"
	AnomalyTooSmallFile      AnomalyLabel = "too_small_file"
	AnomalyTooFastSubmission AnomalyLabel = "too_fast_submission"
)

var anomalyRank = map[AnomalyLabel]int{
	AnomalyUnusualDuration:   0,
	AnomalyTooSmallFile:      1,
	AnomalyTooFastSubmission: 2,
}

func (l AnomalyLabel) String() string {
	return string(l)
}

func (l AnomalyLabel) DisplayName() string {
	switch l {
	case AnomalyUnusualDuration:
		return "🟡 Unusual duration"
	case AnomalyTooSmallFile:
		return "🔴 File too small"
	case AnomalyTooFastSubmission:
		return "🔴 Submitting too fast"
	default:
		return string(l)
	}
}

// SortAnomalies orders labels for display; unknown labels go last, alphabetically.
func SortAnomalies(labels []AnomalyLabel) {
	sort.SliceStable(labels, func(i, j int) bool {
		ri, okI := anomalyRank[labels[i]]
		rj, okJ := anomalyRank[labels[j]]
		switch {
		case okI && okJ:
			return ri < rj
		case okI != okJ:
			return okI
		default:
			return labels[i] < labels[j]
		}
	})
}

// Classification is the duplicate classifier's outcome. Stamp is the value pushed
// onto the recent list when the window was committed.
type Classification struct {
	IsDuplicate bool
	Reason      DuplicateReason
	WorkerID    string
	Fingerprint string
	Duration    int
	Stamp       string
}

type Verdict struct {
	IsDuplicate     bool            `json:"is_duplicate"`
	DuplicateReason DuplicateReason `json:"duplicate_reason"`
	Anomalies       []AnomalyLabel  `json:"anomalies"`
}

func NewVerdict(c Classification, anomalies []AnomalyLabel) Verdict {
	labels := make([]AnomalyLabel, len(anomalies))
	copy(labels, anomalies)
	SortAnomalies(labels)

	reason := c.Reason
	if !c.IsDuplicate {
		reason = ReasonNone
	}

	return Verdict{
		IsDuplicate:     c.IsDuplicate,
		DuplicateReason: reason,
		Anomalies:       labels,
	}
}

// Suspicious reports the suspicious-worker condition.
func (v Verdict) Suspicious(threshold int) bool {
	return len(v.Anomalies) >= threshold
}

func (v Verdict) Status() string {
	if v.IsDuplicate {
		return RecordStatusDuplicate
	}
	return RecordStatusNew
}

// Decision is what the coordinator hands to the notification side.
type Decision struct {
	Verdict    Verdict       `json:"verdict"`
	Record     *LedgerRecord `json:"record"`
	Suspicious bool          `json:"suspicious"`
}
