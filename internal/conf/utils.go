// conf/utils.go
package conf

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/fifostream/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config file only that directory is
// returned.
func GetDefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	configPaths := []string{
		filepath.Join(homeDir, ".config", appDirName),
		filepath.Join("/etc", appDirName),
		filepath.Dir(exePath),
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, configFileName)); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// FindConfigFile locates an existing configuration file
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, configFileName)
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Category(errors.CategoryNotFound).
		Context("operation", "find-config-file").
		Build()
}

// SaveYAMLConfig writes settings to configPath through a temporary file and
// a rename so readers never observe a partial file.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).
			Component("config").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal").
			Build()
	}
	return writeAtomic(configPath, yamlData)
}

// WriteDefaultConfig writes the embedded reference configuration to path.
// An existing file is kept unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Newf("config file already exists").
			Component("config").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	data, err := GetDefaultConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), configDirPermissions); err != nil {
		return errors.New(err).
			Component("config").
			Category(errors.CategoryFileIO).
			Context("operation", "create-config-dir").
			Context("path", path).
			Build()
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	fail := func(err error, op string) error {
		return errors.New(err).
			Component("config").
			Category(errors.CategoryFileIO).
			Context("operation", op).
			Context("path", path).
			Build()
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), "config-*.yaml")
	if err != nil {
		return fail(err, "create-temp")
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fail(err, "write-temp")
	}
	if err := tempFile.Close(); err != nil {
		return fail(err, "close-temp")
	}
	if err := os.Chmod(tempName, ConfigFilePermissions); err != nil {
		return fail(err, "chmod")
	}
	if err := os.Rename(tempName, path); err != nil {
		return fail(err, "rename")
	}
	return nil
}
