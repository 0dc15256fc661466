package handler

import (
	"strconv"

	"github.com/twilio/twilio-go/twiml"

	"collector-agent/internal/usecase"
)

// renderTwiML turns play + record instructions into a TwiML document.
func renderTwiML(in usecase.Instructions) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoicePlay{Url: in.AudioURL},
		&twiml.VoiceRecord{
			MaxLength: strconv.Itoa(in.MaxLength),
			Action:    in.RecordAction,
		},
	})
}
