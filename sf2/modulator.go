package sf2

// ModSrc identifies a modulator's source controller (§3.4). The low byte
// is an enumeration selecting the kind of controller or MIDI CC number;
// bits above that select polarity/direction/type, per the SF2 spec's
// packed 16-bit modulator-source encoding.
type ModSrc uint16

// ModTransform selects the curve applied to a modulator's source value
// before it reaches the amount calculation.
type ModTransform uint16

const (
	TransformLinear    ModTransform = 0
	TransformConcave   ModTransform = 1 // not in the 2.01 spec but widely implemented
	TransformSwitch    ModTransform = 2
	TransformAbsolute  ModTransform = 3
)

// Modulator is (src, dest_gen, amount, amount_src, transform), §3.4.
type Modulator struct {
	Src       ModSrc
	Dest      GenID
	Amount    int16
	AmountSrc ModSrc
	Transform ModTransform
}

// identity returns the (src, dest, amount_src, transform) tuple the spec
// uses to decide whether two modulators are "the same" (§3.4): an override
// of an existing entry replaces only Amount.
func (m Modulator) identity() [4]uint16 {
	return [4]uint16{uint16(m.Src), uint16(m.Dest), uint16(m.AmountSrc), uint16(m.Transform)}
}

// ModList is an ordered list of modulators with the override/additive
// merge rules of §4.5 step 1d.
type ModList []Modulator

// indexOf returns the index of the modulator sharing m's identity tuple,
// or -1.
func (l ModList) indexOf(m Modulator) int {
	id := m.identity()
	for i, v := range l {
		if v.identity() == id {
			return i
		}
	}
	return -1
}

// Override returns a new list equal to l with every modulator in src
// replacing any existing entry of matching identity (appending new ones),
// implementing the "override" merge direction.
func (l ModList) Override(src ModList) ModList {
	out := append(ModList(nil), l...)
	for _, m := range src {
		if i := out.indexOf(m); i >= 0 {
			out[i].Amount = m.Amount
		} else {
			out = append(out, m)
		}
	}
	return out
}

// Additive returns a new list equal to l with every modulator in src
// summed into any existing entry of matching identity (appending new
// ones with their own amount), implementing the "additive" merge
// direction.
func (l ModList) Additive(src ModList) ModList {
	out := append(ModList(nil), l...)
	for _, m := range src {
		if i := out.indexOf(m); i >= 0 {
			out[i].Amount += m.Amount
		} else {
			out = append(out, m)
		}
	}
	return out
}

// DefaultModulators is the SF2 spec's mandatory default modulator list,
// applied before any instrument/preset modulators in the §4.5 merge chain.
func DefaultModulators() ModList {
	return ModList{
		// MIDI note-on velocity -> initial attenuation, concave, negative unipolar.
		{Src: 0x0502, Dest: GenInitialAttenuation, Amount: 960, AmountSrc: 0, Transform: TransformLinear},
		// MIDI note-on velocity -> filter cutoff.
		{Src: 0x0102, Dest: GenInitialFilterFc, Amount: -2400, AmountSrc: 0, Transform: TransformLinear},
		// MIDI channel pressure -> vibrato LFO to pitch.
		{Src: 0x000d, Dest: GenVibLFOToPitch, Amount: 50, AmountSrc: 0, Transform: TransformLinear},
		// MIDI CC1 (mod wheel) -> vibrato LFO to pitch.
		{Src: 0x0081, Dest: GenVibLFOToPitch, Amount: 50, AmountSrc: 0, Transform: TransformLinear},
		// MIDI CC7 (volume) -> initial attenuation.
		{Src: 0x0587, Dest: GenInitialAttenuation, Amount: 960, AmountSrc: 0, Transform: TransformLinear},
		// MIDI CC10 (pan) -> pan.
		{Src: 0x028a, Dest: GenPan, Amount: 1000, AmountSrc: 0, Transform: TransformLinear},
		// MIDI CC11 (expression) -> initial attenuation.
		{Src: 0x058b, Dest: GenInitialAttenuation, Amount: 960, AmountSrc: 0, Transform: TransformLinear},
		// MIDI CC91 (reverb send) -> reverb effects send.
		{Src: 0x00db, Dest: GenReverbEffectsSend, Amount: 200, AmountSrc: 0, Transform: TransformLinear},
		// MIDI CC93 (chorus send) -> chorus effects send.
		{Src: 0x00dd, Dest: GenChorusEffectsSend, Amount: 200, AmountSrc: 0, Transform: TransformLinear},
		// Pitch wheel * pitch wheel sensitivity -> pitch. "Pitch" itself is
		// not one of the 60 GenArray slots; it is a direct synthesis
		// destination the SF2 spec carves out specifically for this
		// default modulator, represented here by the GenPitchDest sentinel.
		{Src: 0x020e, Dest: GenPitchDest, Amount: 12700, AmountSrc: 0x0010, Transform: TransformLinear},
	}
}

// GenPitchDest is a sentinel destination, one past the 60 real generator
// ids, representing the SF2 spec's "direct pitch" modulator destination —
// a synthesis target that bypasses GenArray entirely.
const GenPitchDest GenID = NumGenerators
