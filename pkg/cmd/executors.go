package cmd

import (
	cli "github.com/urfave/cli/v3"

	"github.com/redflow/redflow/pkg/clients/elevenlabs"
	"github.com/redflow/redflow/pkg/clients/gemini"
	"github.com/redflow/redflow/pkg/clients/heygen"
	"github.com/redflow/redflow/pkg/clients/reddit"
	"github.com/redflow/redflow/pkg/clients/youtube"
	"github.com/redflow/redflow/pkg/executors"
	"github.com/redflow/redflow/pkg/pipeline"
)

// ClientConfig carries the collaborator credentials and tuning shared by all
// binaries.
type ClientConfig struct {
	RedditUserAgent string

	GeminiAPIKey   string
	GeminiModel    string
	MaxScriptWords int

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	HeyGenAPIKey   string
	HeyGenAvatarID string

	YouTubeAccessToken string
	YouTubePrivacy     string
}

// ClientFlags returns the CLI flags for ClientConfig, env-sourced the same
// way in every binary.
func ClientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "reddit-user-agent",
			Usage:   "User agent for reddit API requests",
			Sources: cli.EnvVars("REDDIT_USER_AGENT"),
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			Usage:   "Google Generative Language API key",
			Sources: cli.EnvVars("GEMINI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "gemini-model",
			Usage:   "Generative model used for script generation",
			Sources: cli.EnvVars("GEMINI_MODEL"),
		},
		&cli.IntFlag{
			Name:    "max-script-words",
			Usage:   "Soft word budget for generated scripts",
			Value:   500,
			Sources: cli.EnvVars("MAX_SCRIPT_WORDS"),
		},
		&cli.StringFlag{
			Name:    "elevenlabs-api-key",
			Usage:   "ElevenLabs API key",
			Sources: cli.EnvVars("ELEVENLABS_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "elevenlabs-voice-id",
			Usage:   "ElevenLabs voice used for narration",
			Sources: cli.EnvVars("ELEVENLABS_VOICE_ID"),
		},
		&cli.StringFlag{
			Name:    "heygen-api-key",
			Usage:   "HeyGen API key",
			Sources: cli.EnvVars("HEYGEN_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "heygen-avatar-id",
			Usage:   "HeyGen avatar used for rendering",
			Sources: cli.EnvVars("HEYGEN_AVATAR_ID"),
		},
		&cli.StringFlag{
			Name:    "youtube-access-token",
			Usage:   "OAuth access token for the upload channel",
			Sources: cli.EnvVars("YOUTUBE_ACCESS_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "youtube-privacy",
			Usage:   "Privacy status of published videos (public, unlisted, private)",
			Value:   "public",
			Sources: cli.EnvVars("YOUTUBE_PRIVACY"),
		},
	}
}

// ClientConfigFromCommand reads ClientConfig from parsed flags.
func ClientConfigFromCommand(command *cli.Command) ClientConfig {
	return ClientConfig{
		RedditUserAgent:    command.String("reddit-user-agent"),
		GeminiAPIKey:       command.String("gemini-api-key"),
		GeminiModel:        command.String("gemini-model"),
		MaxScriptWords:     command.Int("max-script-words"),
		ElevenLabsAPIKey:   command.String("elevenlabs-api-key"),
		ElevenLabsVoiceID:  command.String("elevenlabs-voice-id"),
		HeyGenAPIKey:       command.String("heygen-api-key"),
		HeyGenAvatarID:     command.String("heygen-avatar-id"),
		YouTubeAccessToken: command.String("youtube-access-token"),
		YouTubePrivacy:     command.String("youtube-privacy"),
	}
}

// NewExecutors wires the concrete clients into the pipeline contracts. With
// previewOnly the media and publish collaborators are left unset; preview
// runs never reach them.
func NewExecutors(cfg ClientConfig, previewOnly bool) (pipeline.Executors, error) {
	redditClient := reddit.NewClient(reddit.Config{UserAgent: cfg.RedditUserAgent})

	geminiClient, err := gemini.NewClient(gemini.Config{
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.GeminiModel,
		MaxWords: cfg.MaxScriptWords,
	})
	if err != nil {
		return pipeline.Executors{}, err
	}

	execs := pipeline.Executors{
		Parser:          redditClient,
		Fetcher:         redditClient,
		ScriptGenerator: geminiClient,
	}

	if previewOnly {
		return execs, nil
	}

	speech, err := elevenlabs.NewClient(elevenlabs.Config{
		APIKey:  cfg.ElevenLabsAPIKey,
		VoiceID: cfg.ElevenLabsVoiceID,
	})
	if err != nil {
		return pipeline.Executors{}, err
	}

	render, err := heygen.NewClient(heygen.Config{
		APIKey:   cfg.HeyGenAPIKey,
		AvatarID: cfg.HeyGenAvatarID,
	})
	if err != nil {
		return pipeline.Executors{}, err
	}

	publisher, err := youtube.NewClient(youtube.Config{
		AccessToken: cfg.YouTubeAccessToken,
		Privacy:     cfg.YouTubePrivacy,
	})
	if err != nil {
		return pipeline.Executors{}, err
	}

	execs.MediaGenerator = executors.NewMediaExecutor(speech, render)
	execs.Publisher = publisher

	return execs, nil
}
