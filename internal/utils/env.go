package utils

import (
	"github.com/joho/godotenv"
)

// ReadEnv parses an env-style file (KEY="value" lines) into a map.
func ReadEnv(file string) (map[string]string, error) {
	return godotenv.Read(file)
}

// OSRelease returns the parsed /etc/os-release of the running system.
func OSRelease() (map[string]string, error) {
	return godotenv.Read("/etc/os-release")
}
