package config

import "time"

// DefaultExtensions are the inbox file types imported by default.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".rst", ".html", ".pdf", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods", ".rtf"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = "http://" + cfg.Server.Addr()
	}
	if cfg.Client.BaseURL == "" {
		cfg.Client.BaseURL = cfg.Client.ServerURL
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 15 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite3"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".local/share/quire/quire.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = ".local/share/quire/index"
	}
	if cfg.Storage.LibrariesRoot == "" {
		cfg.Storage.LibrariesRoot = "Quire"
	}
	if cfg.Images.Backend == "" {
		cfg.Images.Backend = "disk"
	}
	if cfg.Images.SignedURLTTL == 0 {
		cfg.Images.SignedURLTTL = time.Hour
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.TitleBoost == 0 {
		cfg.Search.TitleBoost = 10.0
	}
	if cfg.Search.Fuzziness == 0 {
		cfg.Search.Fuzziness = 1
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), DefaultExtensions...)
	}
}
