package nadc

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// LoadEnv loads a .env file into the process environment. The file named by
// NADC_ENV is used when set, otherwise .env in the working directory.
// Variables already present in the environment are not overwritten.
func LoadEnv() {
	envFilePath := os.Getenv("NADC_ENV")
	if envFilePath == "" {
		dir, err := os.Getwd()
		if err != nil {
			log.Warnf("unable to get the working directory: %v", err)
			return
		}
		envFilePath = filepath.Join(dir, ".env")
	}
	if _, err := os.Stat(envFilePath); err != nil {
		log.Debugf("no .env file at %s", envFilePath)
		return
	}
	log.Infof("Loading .env file from %s", envFilePath)
	if err := godotenv.Load(envFilePath); err != nil {
		log.Warn("Error loading .env file ", err)
	}
}
