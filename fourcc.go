package instpatch

import "fmt"

// FourCC is a four-character chunk identifier, stored as the 32-bit
// little-endian packing of its ASCII bytes (so the in-memory integer's
// low byte is the first character, matching the on-disk byte order).
//
// The teacher's chunk struct kept `id [4]byte` purely to compare against
// literal byte arrays; FourCC generalizes that into a comparable, printable
// value so the RIFF engine, and all three format readers, can share one
// representation instead of re-deriving byte arrays per format.
type FourCC uint32

// NewFourCC packs four ASCII bytes into a FourCC.
func NewFourCC(a, b, c, d byte) FourCC {
	return FourCC(a) | FourCC(b)<<8 | FourCC(c)<<16 | FourCC(d)<<24
}

// FourCCFromString packs the first four bytes of s into a FourCC. Shorter
// strings are padded with spaces, matching RIFF's own padding convention
// for short identifiers.
func FourCCFromString(s string) FourCC {
	var b [4]byte
	for i := range b {
		b[i] = ' '
	}
	copy(b[:], s)
	return NewFourCC(b[0], b[1], b[2], b[3])
}

// Bytes returns the four ASCII bytes in on-disk order.
func (f FourCC) Bytes() [4]byte {
	return [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
}

func (f FourCC) String() string {
	b := f.Bytes()
	return string(b[:])
}

func (f FourCC) GoString() string {
	return fmt.Sprintf("FourCC(%q)", f.String())
}

// RIFF framing identifiers.
var (
	IDRIFF = FourCCFromString("RIFF")
	IDLIST = FourCCFromString("LIST")
)

// SoundFont (SF2) identifiers, §6.1.
var (
	IDsfbk = FourCCFromString("sfbk")
	IDINFO = FourCCFromString("INFO")
	IDsdta = FourCCFromString("sdta")
	IDpdta = FourCCFromString("pdta")

	IDifil = FourCCFromString("ifil")
	IDisng = FourCCFromString("isng")
	IDINAM = FourCCFromString("INAM")
	IDirom = FourCCFromString("irom")
	IDiver = FourCCFromString("iver")
	IDICRD = FourCCFromString("ICRD")
	IDIENG = FourCCFromString("IENG")
	IDIPRD = FourCCFromString("IPRD")
	IDICOP = FourCCFromString("ICOP")
	IDICMT = FourCCFromString("ICMT")
	IDISFT = FourCCFromString("ISFT")

	IDsmpl = FourCCFromString("smpl")
	IDsm24 = FourCCFromString("sm24")

	IDphdr = FourCCFromString("phdr")
	IDpbag = FourCCFromString("pbag")
	IDpmod = FourCCFromString("pmod")
	IDpgen = FourCCFromString("pgen")
	IDinst = FourCCFromString("inst")
	IDibag = FourCCFromString("ibag")
	IDimod = FourCCFromString("imod")
	IDigen = FourCCFromString("igen")
	IDshdr = FourCCFromString("shdr")
)

// DLS Level 2 identifiers, §6.1.
var (
	IDDLS  = FourCCFromString("DLS ")
	IDvers = FourCCFromString("vers")
	IDlins = FourCCFromString("lins")
	IDins  = FourCCFromString("ins ")
	IDinsh = FourCCFromString("insh")
	IDlrgn = FourCCFromString("lrgn")
	IDrgn  = FourCCFromString("rgn ")
	IDrgn2 = FourCCFromString("rgn2")
	IDrgnh = FourCCFromString("rgnh")
	IDwsmp = FourCCFromString("wsmp")
	IDwlnk = FourCCFromString("wlnk")
	IDlart = FourCCFromString("lart")
	IDlar2 = FourCCFromString("lar2")
	IDart1 = FourCCFromString("art1")
	IDart2 = FourCCFromString("art2")
	IDwvpl = FourCCFromString("wvpl")
	IDwave = FourCCFromString("wave")
	IDfmt  = FourCCFromString("fmt ")
	IDdata = FourCCFromString("data")
	IDptbl = FourCCFromString("ptbl")
	IDdlid = FourCCFromString("dlid")
)

// GIG identifiers, additions over DLS §6.1.
var (
	ID3lnk = FourCCFromString("3lnk")
	ID3prg = FourCCFromString("3prg")
	ID3ewl = FourCCFromString("3ewl")
	ID3ewa = FourCCFromString("3ewa")
	ID3ewg = FourCCFromString("3ewg")
	ID3dnl = FourCCFromString("3dnl")
	ID3ddp = FourCCFromString("3ddp")
	ID3gri = FourCCFromString("3gri")
	ID3gnl = FourCCFromString("3gnl")
	ID3gnm = FourCCFromString("3gnm")
	ID3gix = FourCCFromString("3gix")
)

// RIFF INFO identifiers shared between DLS and GIG, §6.1.
var (
	IDIARL = FourCCFromString("IARL")
	IDIART = FourCCFromString("IART")
	IDICMS = FourCCFromString("ICMS")
	IDIGNR = FourCCFromString("IGNR")
	IDIKEY = FourCCFromString("IKEY")
	IDIMED = FourCCFromString("IMED")
	IDISBJ = FourCCFromString("ISBJ")
	IDISRC = FourCCFromString("ISRC")
	IDISRF = FourCCFromString("ISRF")
	IDITCH = FourCCFromString("ITCH")
)

// InfoMaxSize returns the maximum payload byte count the spec allows for a
// given INFO/text chunk id, used by readers to truncate-and-warn and by
// writers to validate before emission. Ids without a specific cap get the
// general 256-byte text limit.
func InfoMaxSize(id FourCC) int {
	switch id {
	case IDifil, IDiver:
		return 4
	case IDICMT:
		return 65536
	default:
		return 256
	}
}
