package orchestrator

// VoiceProfile selects a synthesis voice and the language it speaks.
type VoiceProfile struct {
	Voice    Voice
	Language Language
	// Locale is the regional hint some engines need (e.g. "zh-CN").
	Locale string
}

// VoicePolicy splits voices by message origin. Corrections are spoken in the
// learner's first language, looked up in CorrectionLocales.
type VoicePolicy struct {
	TutorVoice        Voice
	PartnerVoice      Voice
	PartnerLocale     string
	CorrectionLocales map[Language]string
	// FallbackLanguage is used for first languages missing from CorrectionLocales.
	FallbackLanguage Language
}

func DefaultVoicePolicy() VoicePolicy {
	return VoicePolicy{
		TutorVoice:    VoiceF2,
		PartnerVoice:  VoiceM1,
		PartnerLocale: "en-US",
		CorrectionLocales: map[Language]string{
			LanguageEn: "en-US",
			LanguageEs: "es-ES",
			LanguageZh: "zh-CN",
			LanguagePt: "pt-BR",
			LanguageDe: "de-DE",
			LanguageFr: "fr-FR",
			LanguageAr: "ar-SA",
			LanguageJa: "ja-JP",
			LanguageKo: "ko-KR",
			LanguageIt: "it-IT",
		},
		FallbackLanguage: LanguageEn,
	}
}

// Correction returns the tutor profile for a learner's first language.
func (p VoicePolicy) Correction(firstLanguage Language) VoiceProfile {
	if locale, ok := p.CorrectionLocales[firstLanguage]; ok {
		return VoiceProfile{Voice: p.TutorVoice, Language: firstLanguage, Locale: locale}
	}
	fallback := p.FallbackLanguage
	if fallback == "" {
		fallback = LanguageEn
	}
	return VoiceProfile{Voice: p.TutorVoice, Language: fallback, Locale: p.CorrectionLocales[fallback]}
}

// Partner returns the scene partner's profile for the scene language.
func (p VoicePolicy) Partner(sceneLanguage Language) VoiceProfile {
	return VoiceProfile{Voice: p.PartnerVoice, Language: sceneLanguage, Locale: p.PartnerLocale}
}
