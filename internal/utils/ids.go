package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateNanoIDWithPrefix returns ids such as "run_x1y2z3...".
func GenerateNanoIDWithPrefix(prefix string, size int) string {
	id, err := gonanoid.Generate(nanoIDAlphabet, size)
	if err != nil {
		panic(err)
	}
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
