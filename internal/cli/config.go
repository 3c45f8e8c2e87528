package cli

import (
	"github.com/caarlos0/env/v11"
	"github.com/denismitr/upgradedb/internal/revision"
	"github.com/denismitr/upgradedb/internal/source"
	"github.com/denismitr/upgradedb/migration"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"io/fs"
	"os"
	"strings"
	"time"
)

const DefaultConfigFile = "upgradedb.yaml"

var ErrInvalidConfig = errors.New("invalid upgradedb configuration")

const configFileStub = `version: "1"
migrations:
  local_folder: ./migrations
  table: migrations
  revision_timeout: 5s
  metrics_textfile: ""
  lock: false
databases:
  default:
    url: "%%DATABASE_URL%%"
`

type (
	Config struct {
		MigrationsFolder string
		MigrationsTable  string
		RevisionTimeout  time.Duration
		MetricsTextfile  string
		Lock             bool
		Databases        map[string]string
	}

	migrations struct {
		LocalFolder     string `yaml:"local_folder"`
		Table           string `yaml:"table"`
		RevisionTimeout string `yaml:"revision_timeout"`
		MetricsTextfile string `yaml:"metrics_textfile"`
		Lock            bool   `yaml:"lock"`
	}

	databaseEntry struct {
		URL string `yaml:"url"`
	}

	configFile struct {
		Version    string                   `yaml:"version"`
		Migrations migrations               `yaml:"migrations"`
		Databases  map[string]databaseEntry `yaml:"databases"`
	}

	// envOverrides win over the config file
	envOverrides struct {
		MigrationsFolder string `env:"UPGRADEDB_MIGRATIONS_FOLDER"`
		DatabaseURL      string `env:"UPGRADEDB_DATABASE_URL"`
		MigrationsTable  string `env:"UPGRADEDB_MIGRATIONS_TABLE"`
		MetricsTextfile  string `env:"UPGRADEDB_METRICS_TEXTFILE"`
	}
)

// LoadDotenv loads variables from the given files, missing files are ignored
func LoadDotenv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return errors.Wrapf(err, "could not load [%s]", path)
		}
	}

	return nil
}

// LoadConfig reads the yaml config file when path is not empty and then
// applies the UPGRADEDB_* environment variables on top of it
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		MigrationsFolder: source.DefaultMigrationsFolder,
		RevisionTimeout:  revision.DefaultTimeout,
		Databases:        make(map[string]string),
	}

	if path != "" {
		if err := readConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return cfg, errors.Wrap(err, "could not parse environment")
	}

	if overrides.MigrationsFolder != "" {
		cfg.MigrationsFolder = overrides.MigrationsFolder
	}

	if overrides.DatabaseURL != "" {
		cfg.Databases[migration.DefaultDatabase] = overrides.DatabaseURL
	}

	if overrides.MigrationsTable != "" {
		cfg.MigrationsTable = overrides.MigrationsTable
	}

	if overrides.MetricsTextfile != "" {
		cfg.MetricsTextfile = overrides.MetricsTextfile
	}

	if len(cfg.Databases) == 0 {
		return cfg, errors.Wrap(ErrInvalidConfig, "no database url was defined")
	}

	if cfg.MigrationsFolder == "" {
		return cfg, errors.Wrap(ErrInvalidConfig, "migrations folder was not defined")
	}

	return cfg, nil
}

func readConfigFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "could not read upgradedb configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return errors.Wrap(err, "could not parse upgradedb configuration file")
	}

	if folder := fromEnv(cfgFile.Migrations.LocalFolder); folder != "" {
		cfg.MigrationsFolder = folder
	}

	cfg.MigrationsTable = fromEnv(cfgFile.Migrations.Table)
	cfg.MetricsTextfile = fromEnv(cfgFile.Migrations.MetricsTextfile)
	cfg.Lock = cfgFile.Migrations.Lock

	if timeout := fromEnv(cfgFile.Migrations.RevisionTimeout); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "revision_timeout [%s] is not a duration", timeout)
		}
		cfg.RevisionTimeout = d
	}

	for alias, entry := range cfgFile.Databases {
		url := fromEnv(entry.URL)
		if url == "" {
			return errors.Wrapf(ErrInvalidConfig, "url of database [%s] is empty", alias)
		}
		cfg.Databases[alias] = url
	}

	return nil
}

// fromEnv resolves %%VAR%% placeholders to the value of the environment variable
func fromEnv(v string) string {
	if len(v) > 4 && strings.HasPrefix(v, "%%") && strings.HasSuffix(v, "%%") {
		return os.Getenv(strings.Trim(v, "%"))
	}

	return v
}

// InitCfg writes a config file stub to path, it never overwrites an existing file
func InitCfg(path string) error {
	if FileExists(path) {
		return errors.Errorf("config file [%s] already exists", path)
	}

	if err := os.WriteFile(path, []byte(configFileStub), 0644); err != nil {
		return errors.Wrap(err, "could not create config file")
	}

	return nil
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
