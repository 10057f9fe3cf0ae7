package hda

import "strings"

// Quality is the per-value status word. The low byte is the data quality,
// the high bits are historian flags.
type Quality uint32

const (
	QualityGood      Quality = 0xC0
	QualityUncertain Quality = 0x40
	QualityBad       Quality = 0x00

	// History flags.
	QualityMoreData     Quality = 0x10000
	QualityNoData       Quality = 0x20000
	QualityCalculated   Quality = 0x40000
	QualityInterpolated Quality = 0x80000
	QualityRaw          Quality = 0x100000
)

const dataQualityMask Quality = 0xFF

// Data returns the data quality portion with history flags stripped.
func (q Quality) Data() Quality {
	return q & dataQualityMask
}

// Has reports whether every bit of flag is set.
func (q Quality) Has(flag Quality) bool {
	return q&flag == flag
}

func (q Quality) String() string {
	var parts []string
	switch q.Data() {
	case QualityGood:
		parts = append(parts, "Good")
	case QualityUncertain:
		parts = append(parts, "Uncertain")
	default:
		parts = append(parts, "Bad")
	}
	for _, f := range []struct {
		flag Quality
		name string
	}{
		{QualityMoreData, "MoreData"},
		{QualityNoData, "NoData"},
		{QualityCalculated, "Calculated"},
		{QualityInterpolated, "Interpolated"},
		{QualityRaw, "Raw"},
	} {
		if q.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}
