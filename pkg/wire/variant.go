package wire

// VariantKind identifies which payload a Variant holds.
type VariantKind uint8

// Variant payload kinds, per the reference wire format.
const (
	VariantInt64    VariantKind = 1
	VariantDouble   VariantKind = 2
	VariantBool     VariantKind = 3
	VariantString   VariantKind = 4
	VariantDateTime VariantKind = 5
	VariantUint64   VariantKind = 6
	VariantQList    VariantKind = 7
)

// Variant is a tagged union of the seven value kinds the wire format allows
// inside a single Variant slot. Only the field matching Kind is meaningful.
type Variant struct {
	Kind     VariantKind
	Int64    int64
	Double   float64
	Bool     bool
	String   string
	DateTime DateTime
	Uint64   uint64
	QList    []Variant
}

// NewVariantInt64 builds an int64 Variant.
func NewVariantInt64(v int64) Variant { return Variant{Kind: VariantInt64, Int64: v} }

// NewVariantDouble builds a double Variant.
func NewVariantDouble(v float64) Variant { return Variant{Kind: VariantDouble, Double: v} }

// NewVariantBool builds a bool Variant.
func NewVariantBool(v bool) Variant { return Variant{Kind: VariantBool, Bool: v} }

// NewVariantString builds a string Variant.
func NewVariantString(v string) Variant { return Variant{Kind: VariantString, String: v} }

// NewVariantDateTime builds a datetime Variant.
func NewVariantDateTime(v DateTime) Variant { return Variant{Kind: VariantDateTime, DateTime: v} }

// NewVariantUint64 builds a uint64 Variant.
func NewVariantUint64(v uint64) Variant { return Variant{Kind: VariantUint64, Uint64: v} }

// NewVariantQList builds a list-of-Variant Variant.
func NewVariantQList(v []Variant) Variant { return Variant{Kind: VariantQList, QList: v} }

// ReadVariant reads a tagged Variant: one tag byte followed by its payload.
func (r *Reader) ReadVariant() (Variant, error) {
	tag, err := r.Uint8()
	if err != nil {
		return Variant{}, err
	}
	switch VariantKind(tag) {
	case VariantInt64:
		v, err := r.Int64()
		return Variant{Kind: VariantInt64, Int64: v}, err
	case VariantDouble:
		v, err := r.Float64()
		return Variant{Kind: VariantDouble, Double: v}, err
	case VariantBool:
		v, err := r.Bool()
		return Variant{Kind: VariantBool, Bool: v}, err
	case VariantString:
		v, err := r.String()
		return Variant{Kind: VariantString, String: v}, err
	case VariantDateTime:
		v, err := r.Uint64()
		return Variant{Kind: VariantDateTime, DateTime: DateTime(v)}, err
	case VariantUint64:
		v, err := r.Uint64()
		return Variant{Kind: VariantUint64, Uint64: v}, err
	case VariantQList:
		v, err := ReadQList(r, (*Reader).ReadVariant)
		return Variant{Kind: VariantQList, QList: v}, err
	default:
		return Variant{}, ErrUnknownVariantTag
	}
}

// WriteVariant appends a tag byte followed by v's payload.
func (w *Writer) WriteVariant(v Variant) {
	w.Uint8(uint8(v.Kind))
	switch v.Kind {
	case VariantInt64:
		w.Int64(v.Int64)
	case VariantDouble:
		w.Float64(v.Double)
	case VariantBool:
		w.Bool(v.Bool)
	case VariantString:
		w.String(v.String)
	case VariantDateTime:
		w.Uint64(uint64(v.DateTime))
	case VariantUint64:
		w.Uint64(v.Uint64)
	case VariantQList:
		WriteQList(w, v.QList, (*Writer).WriteVariant)
	}
}
