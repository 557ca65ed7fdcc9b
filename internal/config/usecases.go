package config

import "fmt"

// Template describes how a correspondence type is drafted: the tone of the
// generated text and the ordered section structure it must follow.
// Templates are read-only process-wide state, initialized once at startup.
type Template struct {
	Tone      string   `mapstructure:"tone" json:"tone"`
	Structure []string `mapstructure:"structure" json:"structure"`
}

// ConsultationProfile maps a technical level to the model and sampling
// temperature used for consultation answers at that depth.
type ConsultationProfile struct {
	Model       string  `mapstructure:"model" json:"model"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
}

// DefaultCorrespondenceType is used when a request names an unknown type.
const DefaultCorrespondenceType = "project_update"

// DefaultConsultationLevel is used when a request names an unknown level.
const DefaultConsultationLevel = "medium"

// defaultCorrespondence returns the built-in correspondence templates.
func defaultCorrespondence() map[string]Template {
	return map[string]Template{
		"safety_incident": {
			Tone:      "formal",
			Structure: []string{"incident_summary", "immediate_actions", "investigation", "preventive_measures", "closure"},
		},
		"project_update": {
			Tone:      "professional",
			Structure: []string{"summary", "progress", "challenges", "next_steps", "timeline"},
		},
		"technical_consultation": {
			Tone:      "technical",
			Structure: []string{"problem_statement", "analysis", "recommendations", "risks", "conclusion"},
		},
		"vendor_communication": {
			Tone:      "business",
			Structure: []string{"purpose", "requirements", "expectations", "timeline", "next_actions"},
		},
	}
}

// defaultConsultation returns the built-in consultation profiles.
// Lower technical levels use a more conversational model at a higher
// temperature; higher levels trade creativity for precision.
func defaultConsultation() map[string]ConsultationProfile {
	return map[string]ConsultationProfile{
		"low":    {Model: "llama3.2:latest", Temperature: 0.8},
		"medium": {Model: "mistral:7b-instruct", Temperature: 0.6},
		"high":   {Model: "mistral:7b-instruct", Temperature: 0.4},
	}
}

// applyUseCaseDefaults fills in built-in templates and profiles when the
// config file does not override them.
func (c *Config) applyUseCaseDefaults() {
	if len(c.Correspondence) == 0 {
		c.Correspondence = defaultCorrespondence()
	}
	if len(c.Consultation) == 0 {
		c.Consultation = defaultConsultation()
	}
}

// validateUseCases checks that templates and profiles are well formed and
// that the fallback entries exist.
func (c *Config) validateUseCases() error {
	if _, ok := c.Correspondence[DefaultCorrespondenceType]; !ok {
		return fmt.Errorf("%w: fallback type %q missing", ErrInvalidTemplate, DefaultCorrespondenceType)
	}
	for name, tmpl := range c.Correspondence {
		if tmpl.Tone == "" {
			return fmt.Errorf("%w: %q has no tone", ErrInvalidTemplate, name)
		}
		if len(tmpl.Structure) == 0 {
			return fmt.Errorf("%w: %q has no structure", ErrInvalidTemplate, name)
		}
	}

	if _, ok := c.Consultation[DefaultConsultationLevel]; !ok {
		return fmt.Errorf("%w: fallback level %q missing", ErrInvalidProfile, DefaultConsultationLevel)
	}
	for name, prof := range c.Consultation {
		if prof.Model == "" {
			return fmt.Errorf("%w: %q has no model", ErrInvalidProfile, name)
		}
		if prof.Temperature < 0.0 || prof.Temperature > 1.0 {
			return fmt.Errorf("%w: %q temperature must be in [0,1], got %.2f",
				ErrInvalidProfile, name, prof.Temperature)
		}
	}

	return nil
}
