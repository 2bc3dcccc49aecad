package client

import (
	"errors"

	"github.com/google/uuid"
	"github.com/xaionaro-go/speechstream/pkg/rpc"
)

var (
	ErrEmptyAudio = errors.New("empty audio")
	ErrEmptyToken = errors.New("empty session token")
)

func NewSessionToken() string {
	return uuid.NewString()
}

func NewRequest(
	sessionToken string,
	audioID uint32,
	audio []byte,
) (*rpc.AudioData, error) {
	if sessionToken == "" {
		return nil, ErrEmptyToken
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return &rpc.AudioData{
		SessionToken: sessionToken,
		AudioID:      audioID,
		Audio:        audio,
	}, nil
}
