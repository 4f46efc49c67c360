package rating

import "fmt"

// Record is one entity's finished attribute set, every value already
// clamped to the platform scale. Records are never mutated after Map
// returns them.
type Record map[string]int

// SourceKind says whether an entity arrives with detailed statistics
// or falls back to a position-and-age default profile.
type SourceKind int

const (
	// Detailed sources carry per-statistic raw values to rank.
	Detailed SourceKind = iota
	// PositionDefault sources substitute the position's profile.
	PositionDefault
)

// Source is one entity's input to the mapper.
type Source struct {
	Kind     SourceKind
	Position string
	Age      int
	Stats    map[string]float64
}

// DetailedSource wraps raw statistic values for a player.
func DetailedSource(position string, age int, stats map[string]float64) Source {
	return Source{Kind: Detailed, Position: position, Age: age, Stats: stats}
}

// DefaultSource marks a player without usable statistics.
func DefaultSource(position string, age int) Source {
	return Source{Kind: PositionDefault, Position: position, Age: age}
}

// Adjustment shifts one attribute after percentile mapping. Delta is
// added first; Cap, when above zero, then bounds the result below the
// scale maximum (used to cap e.g. goalkeeper shooting).
type Adjustment struct {
	Attribute string
	Delta     int
	Cap       int
}

// AgeRule applies attribute deltas to default profiles for ages in the
// closed range [From, To].
type AgeRule struct {
	From, To int
	Deltas   map[string]int
}

// Config parameterizes a Mapper for one target platform.
type Config struct {
	Scale      Scale
	Steps      StepTable
	Attributes []string
	// Defaults holds one full profile per position, keyed by position
	// then attribute.
	Defaults map[string]Record
	// AgeCurve adjusts default profiles by age band.
	AgeCurve []AgeRule
	// Adjustments apply to detail-mapped records, keyed by position.
	Adjustments map[string][]Adjustment
}

// Mapper converts Sources into Records. Mappers are stateless after
// construction and safe to share across concurrent jobs.
type Mapper struct {
	cfg Config
}

// NewMapper validates the configuration against the scale.
func NewMapper(cfg Config) (*Mapper, error) {
	if cfg.Scale.Min > cfg.Scale.Max {
		return nil, fmt.Errorf("%w: scale [%d,%d]", ErrRange, cfg.Scale.Min, cfg.Scale.Max)
	}
	if err := cfg.Steps.validate(cfg.Scale); err != nil {
		return nil, err
	}
	if len(cfg.Attributes) == 0 {
		return nil, fmt.Errorf("%w: no attributes declared", ErrRange)
	}
	for pos, profile := range cfg.Defaults {
		for _, attr := range cfg.Attributes {
			v, ok := profile[attr]
			if !ok {
				return nil, fmt.Errorf("%w: default profile %q missing %q", ErrRange, pos, attr)
			}
			if v < cfg.Scale.Min || v > cfg.Scale.Max {
				return nil, fmt.Errorf("%w: default %s/%s = %d outside scale", ErrRange, pos, attr, v)
			}
		}
	}
	return &Mapper{cfg: cfg}, nil
}

// Scale returns the platform scale the mapper clamps to.
func (m *Mapper) Scale() Scale { return m.cfg.Scale }

// Map produces a fresh Record for one entity. Detailed sources are
// ranked against the cohort; default sources take the position profile
// shaped by the age curve. Either way every attribute ends up inside
// the platform scale.
func (m *Mapper) Map(src Source, cohort *Cohort) Record {
	if src.Kind == PositionDefault || len(src.Stats) == 0 {
		return m.defaultRecord(src)
	}
	rec := make(Record, len(m.cfg.Attributes))
	for _, attr := range m.cfg.Attributes {
		raw, ok := src.Stats[attr]
		pct := 50.0
		if ok {
			pct = cohort.Percentile(attr, raw)
		}
		rec[attr] = m.cfg.Steps.Rating(pct)
	}
	for _, adj := range m.cfg.Adjustments[src.Position] {
		v, ok := rec[adj.Attribute]
		if !ok {
			continue
		}
		v += adj.Delta
		if adj.Cap > 0 && v > adj.Cap {
			v = adj.Cap
		}
		rec[adj.Attribute] = v
	}
	for attr, v := range rec {
		rec[attr] = m.cfg.Scale.Clamp(v)
	}
	return rec
}

func (m *Mapper) defaultRecord(src Source) Record {
	profile, ok := m.cfg.Defaults[src.Position]
	if !ok {
		profile = m.fallbackProfile()
	}
	rec := make(Record, len(m.cfg.Attributes))
	for _, attr := range m.cfg.Attributes {
		rec[attr] = profile[attr]
	}
	for _, rule := range m.cfg.AgeCurve {
		if src.Age < rule.From || src.Age > rule.To {
			continue
		}
		for attr, delta := range rule.Deltas {
			if _, ok := rec[attr]; ok {
				rec[attr] += delta
			}
		}
	}
	for attr, v := range rec {
		rec[attr] = m.cfg.Scale.Clamp(v)
	}
	return rec
}

// fallbackProfile handles positions with no declared default: mid-scale
// across the board.
func (m *Mapper) fallbackProfile() Record {
	mid := (m.cfg.Scale.Min + m.cfg.Scale.Max) / 2
	rec := make(Record, len(m.cfg.Attributes))
	for _, attr := range m.cfg.Attributes {
		rec[attr] = mid
	}
	return rec
}
