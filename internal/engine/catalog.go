package engine

import "slices"

// RecommendedModel is a catalog entry known to work with the model runner.
type RecommendedModel struct {
	ID   string
	Name string
	// Vocoder is the vocoder id the model needs, empty when it needs none.
	Vocoder    string
	Installed  bool
	Configured bool
}

var recommendedModels = []struct{ id, name string }{
	{"microsoft/speecht5_tts", "SpeechT5 TTS"},
	{"facebook/mms-tts-eng", "MMS TTS English"},
	{"espnet/kan-bayashi_ljspeech_vits", "LJSpeech VITS"},
	{"suno/bark-small", "Bark Small"},
}

// Recommended returns the model catalog annotated with what the store holds
// and which entry engines.model.model_id selects.
func (m *ModelEngine) Recommended() []RecommendedModel {
	out := make([]RecommendedModel, 0, len(recommendedModels))
	for _, r := range recommendedModels {
		rec := RecommendedModel{
			ID:         r.id,
			Name:       r.name,
			Installed:  m.store.Present(r.id, nil),
			Configured: r.id == m.cfg.ModelID,
		}
		if slices.Contains(m.cfg.VocoderFamilies, modelFamily(r.id)) {
			rec.Vocoder = m.cfg.VocoderID
		}
		out = append(out, rec)
	}
	return out
}
