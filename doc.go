// Package instpatch implements the core of a music-instrument patch file
// library: a streaming RIFF chunk engine, a polymorphic sample-data storage
// layer, and the shared plumbing used by the SoundFont (SF2), DLS Level 2
// and GigaSampler (GIG) format packages (instpatch/sf2, instpatch/dls,
// instpatch/gig) and the voice-cache flattening pass (instpatch/voicecache).
package instpatch
