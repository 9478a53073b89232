// Command voiceloop runs a hands-free voice assistant against the OpenAI
// Realtime API.
//
// Usage:
//
//	voiceloop run [flags]
//	voiceloop devices
//	voiceloop version
//
// Settings come from the environment (VOICELOOP_* and OPENAI_API_KEY) and
// an optional .env file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
