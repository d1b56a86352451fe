package providers

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Known provider names.
const (
	Anthropic  = "anthropic"
	OpenAI     = "openai"
	Bedrock    = "bedrock"
	Runway     = "runway"
	Luma       = "luma"
	Polly      = "polly"
	ElevenLabs = "elevenlabs"
	Azure      = "azure"
)

// KnownNames lists every built-in provider variant.
func KnownNames() []string {
	return []string{Anthropic, OpenAI, Bedrock, Runway, Luma, Polly, ElevenLabs, Azure}
}

// Deps carries what the built-in variants need to authenticate.
type Deps struct {
	// APIKey resolves the key for an API-key vendor by provider name.
	APIKey func(provider string) KeyFunc
	// AWS supplies credentials for SigV4-signed engines.
	AWS        aws.Config
	HTTPClient *http.Client
}

// RegisterKnown registers every built-in variant into r.
func RegisterKnown(r *Registry, deps Deps) {
	for _, name := range KnownNames() {
		p, err := NewKnown(name, deps)
		if err != nil {
			continue
		}
		r.Register(p)
	}
}

// NewKnown builds the built-in provider for name.
func NewKnown(name string, deps Deps) (ModelProvider, error) {
	key := func(provider string) KeyFunc {
		if deps.APIKey == nil {
			return nil
		}
		return deps.APIKey(provider)
	}
	opts := []HTTPOption{WithHTTPClient(deps.HTTPClient)}
	sigv4 := func(service string) Authorizer {
		return SigV4Auth{Credentials: deps.AWS.Credentials, Service: service, Region: deps.AWS.Region}
	}

	switch name {
	case Anthropic:
		return NewHTTPProvider(anthropicVendor(), HeaderAuth{Header: "x-api-key", Key: key(Anthropic)}, opts...), nil
	case OpenAI:
		return NewHTTPProvider(openAIVendor(), HeaderAuth{Header: "Authorization", Prefix: "Bearer ", Key: key(OpenAI)}, opts...), nil
	case Azure:
		return NewHTTPProvider(azureVendor(), HeaderAuth{Header: "api-key", Key: key(Azure)}, opts...), nil
	case Runway:
		return NewHTTPProvider(runwayVendor(), HeaderAuth{Header: "Authorization", Prefix: "Bearer ", Key: key(Runway)}, opts...), nil
	case Luma:
		return NewHTTPProvider(lumaVendor(), HeaderAuth{Header: "Authorization", Prefix: "Bearer ", Key: key(Luma)}, opts...), nil
	case ElevenLabs:
		return NewHTTPProvider(elevenLabsVendor(), HeaderAuth{Header: "xi-api-key", Key: key(ElevenLabs)}, opts...), nil
	case Bedrock:
		return NewHTTPProvider(bedrockVendor(), sigv4("bedrock"), opts...), nil
	case Polly:
		return NewHTTPProvider(pollyVendor(), sigv4("polly"), opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

func merge(base map[string]any, params map[string]any) map[string]any {
	for k, v := range params {
		base[k] = v
	}
	return base
}

func chatMessages(prompt string) []map[string]any {
	return []map[string]any{{"role": "user", "content": prompt}}
}

func unsupported(vendor string, c Category) error {
	return fmt.Errorf("%s does not serve %s generation", vendor, c)
}

func anthropicVendor() Vendor {
	return Vendor{
		Name:            Anthropic,
		DefaultEndpoint: "https://api.anthropic.com/v1",
		Headers:         map[string]string{"anthropic-version": "2023-06-01"},
		Build: func(req Request) (Route, error) {
			if req.Category != CategoryContent {
				return Route{}, unsupported(Anthropic, req.Category)
			}
			return Route{Path: "/messages", Body: merge(map[string]any{
				"model":      req.Model,
				"max_tokens": 1024,
				"messages":   chatMessages(req.Prompt),
			}, req.Params)}, nil
		},
	}
}

func openAIVendor() Vendor {
	return Vendor{
		Name:            OpenAI,
		DefaultEndpoint: "https://api.openai.com/v1",
		Build: func(req Request) (Route, error) {
			switch req.Category {
			case CategoryContent:
				return Route{Path: "/chat/completions", Body: merge(map[string]any{
					"model":    req.Model,
					"messages": chatMessages(req.Prompt),
				}, req.Params)}, nil
			case CategoryAudio:
				return Route{Path: "/audio/speech", Body: merge(map[string]any{
					"model": req.Model,
					"input": req.Prompt,
					"voice": "alloy",
				}, req.Params)}, nil
			default:
				return Route{}, unsupported(OpenAI, req.Category)
			}
		},
	}
}

func azureVendor() Vendor {
	return Vendor{
		Name: Azure,
		Build: func(req Request) (Route, error) {
			if req.Category != CategoryContent {
				return Route{}, unsupported(Azure, req.Category)
			}
			return Route{
				Path: "/openai/deployments/" + url.PathEscape(req.Model) + "/chat/completions?api-version=2024-06-01",
				Body: merge(map[string]any{"messages": chatMessages(req.Prompt)}, req.Params),
			}, nil
		},
	}
}

func runwayVendor() Vendor {
	return Vendor{
		Name:            Runway,
		DefaultEndpoint: "https://api.dev.runwayml.com/v1",
		Headers:         map[string]string{"X-Runway-Version": "2024-11-06"},
		Build: func(req Request) (Route, error) {
			if req.Category != CategoryVideo {
				return Route{}, unsupported(Runway, req.Category)
			}
			if req.Probe {
				return Route{Method: http.MethodGet, Path: "/organization"}, nil
			}
			return Route{Path: "/image_to_video", Body: merge(map[string]any{
				"model":      req.Model,
				"promptText": req.Prompt,
			}, req.Params)}, nil
		},
	}
}

func lumaVendor() Vendor {
	return Vendor{
		Name:            Luma,
		DefaultEndpoint: "https://api.lumalabs.ai/dream-machine/v1",
		Build: func(req Request) (Route, error) {
			if req.Category != CategoryVideo {
				return Route{}, unsupported(Luma, req.Category)
			}
			if req.Probe {
				return Route{Method: http.MethodGet, Path: "/generations?limit=1"}, nil
			}
			return Route{Path: "/generations", Body: merge(map[string]any{
				"model":  req.Model,
				"prompt": req.Prompt,
			}, req.Params)}, nil
		},
	}
}

func elevenLabsVendor() Vendor {
	return Vendor{
		Name:            ElevenLabs,
		DefaultEndpoint: "https://api.elevenlabs.io/v1",
		Build: func(req Request) (Route, error) {
			if req.Category != CategoryAudio {
				return Route{}, unsupported(ElevenLabs, req.Category)
			}
			if req.Probe {
				return Route{Method: http.MethodGet, Path: "/user"}, nil
			}
			voice, _ := req.Params["voice_id"].(string)
			if voice == "" {
				return Route{}, fmt.Errorf("%s requires params.voice_id", ElevenLabs)
			}
			body := map[string]any{"text": req.Prompt, "model_id": req.Model}
			for k, v := range req.Params {
				if k != "voice_id" {
					body[k] = v
				}
			}
			return Route{Path: "/text-to-speech/" + url.PathEscape(voice), Body: body}, nil
		},
	}
}

func bedrockVendor() Vendor {
	return Vendor{
		Name:            Bedrock,
		DefaultEndpoint: "https://bedrock-runtime.{region}.amazonaws.com",
		Build: func(req Request) (Route, error) {
			switch req.Category {
			case CategoryContent:
				return Route{Path: "/model/" + url.PathEscape(req.Model) + "/invoke", Body: merge(map[string]any{
					"anthropic_version": "bedrock-2023-05-31",
					"max_tokens":        1024,
					"messages":          chatMessages(req.Prompt),
				}, req.Params)}, nil
			case CategoryVideo:
				if req.Probe {
					return Route{Method: http.MethodGet, Path: "/async-invoke?maxResults=1"}, nil
				}
				return Route{Path: "/async-invoke", Body: map[string]any{
					"modelId": req.Model,
					"modelInput": merge(map[string]any{
						"taskType":          "TEXT_VIDEO",
						"textToVideoParams": map[string]any{"text": req.Prompt},
					}, req.Params),
				}}, nil
			default:
				return Route{}, unsupported(Bedrock, req.Category)
			}
		},
	}
}

func pollyVendor() Vendor {
	return Vendor{
		Name:            Polly,
		DefaultEndpoint: "https://polly.{region}.amazonaws.com",
		Build: func(req Request) (Route, error) {
			if req.Category != CategoryAudio {
				return Route{}, unsupported(Polly, req.Category)
			}
			if req.Probe {
				return Route{Method: http.MethodGet, Path: "/v1/voices?Engine=" + url.QueryEscape(req.Model)}, nil
			}
			return Route{Path: "/v1/speech", Body: merge(map[string]any{
				"Engine":       req.Model,
				"Text":         req.Prompt,
				"OutputFormat": "mp3",
				"VoiceId":      "Matthew",
			}, req.Params)}, nil
		},
	}
}
