package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigPath             = "~/.config/voxbridge/config.toml"
	defaultOutputDir              = "~/voxbridge"
	defaultLogDir                 = "~/.local/share/voxbridge/logs"
	defaultModelsDir              = "~/.local/share/voxbridge/models"
	defaultHistoryDB              = "~/.local/share/voxbridge/history.db"
	defaultFailureLog             = "~/.local/share/voxbridge/logs/failures.log"
	defaultLockPath               = "~/.local/share/voxbridge/voxbridge.lock"
	defaultCacheDirName           = "voxbridge_cache"
	defaultInterItemDelaySeconds  = 1.0
	defaultMaxDurationMinutes     = 60
	defaultPoolSize               = 3
	defaultTickIntervalMS         = 100
	defaultSynthesizer            = "offline"
	defaultRecognizer             = "whisperx"
	defaultLanguage               = "en"
	defaultCloudBaseURL           = "https://api.openai.com/v1"
	defaultCloudTTSModel          = "tts-1"
	defaultCloudVoice             = "alloy"
	defaultCloudSTTModel          = "whisper-1"
	defaultCloudRequestsPerMinute = 50
	defaultOfflineBinary          = "espeak-ng"
	defaultOfflineVoice           = "en"
	defaultOfflineWordsPerMinute  = 175
	defaultModelID                = "microsoft/speecht5_tts"
	defaultVocoderID              = "microsoft/speecht5_hifigan"
	defaultModelBaseURL           = "https://huggingface.co"
	defaultModelRunner            = "voxbridge-tts-runner"
	defaultDownloadAttempts       = 3
	defaultDownloadTimeoutSeconds = 600
	defaultWhisperXModel          = "large-v3"
	defaultWhisperXVADMethod      = "silero"
	defaultNotifyRequestTimeout   = 10
	defaultNotifyQueueMinItems    = 2
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

var (
	defaultVocoderFamilies = []string{"speecht5"}
	defaultModelFiles      = []string{"config.json", "preprocessor_config.json", "model.safetensors"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:   defaultCacheDir(),
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			ModelsDir:  defaultModelsDir,
			HistoryDB:  defaultHistoryDB,
			FailureLog: defaultFailureLog,
			LockPath:   defaultLockPath,
		},
		Queue: Queue{
			InterItemDelaySeconds: defaultInterItemDelaySeconds,
		},
		Validation: Validation{
			MaxDurationMinutes: defaultMaxDurationMinutes,
		},
		Workers: Workers{
			PoolSize:       defaultPoolSize,
			TickIntervalMS: defaultTickIntervalMS,
		},
		Engines: Engines{
			DefaultSynthesizer: defaultSynthesizer,
			DefaultRecognizer:  defaultRecognizer,
			Language:           defaultLanguage,
			Cloud: Cloud{
				BaseURL:           defaultCloudBaseURL,
				TTSModel:          defaultCloudTTSModel,
				Voice:             defaultCloudVoice,
				STTModel:          defaultCloudSTTModel,
				RequestsPerMinute: defaultCloudRequestsPerMinute,
			},
			Offline: Offline{
				Binary:         defaultOfflineBinary,
				Voice:          defaultOfflineVoice,
				WordsPerMinute: defaultOfflineWordsPerMinute,
			},
			Model: Model{
				ModelID:                defaultModelID,
				VocoderID:              defaultVocoderID,
				VocoderFamilies:        append([]string(nil), defaultVocoderFamilies...),
				BaseURL:                defaultModelBaseURL,
				Files:                  append([]string(nil), defaultModelFiles...),
				Runner:                 defaultModelRunner,
				DownloadAttempts:       defaultDownloadAttempts,
				DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
			},
			WhisperX: WhisperX{
				Model:     defaultWhisperXModel,
				VADMethod: defaultWhisperXVADMethod,
			},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Queue:          true,
			Errors:         true,
			QueueMinItems:  defaultNotifyQueueMinItems,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultCacheDir() string {
	return filepath.Join(os.TempDir(), defaultCacheDirName)
}
