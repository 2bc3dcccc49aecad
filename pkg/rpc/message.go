// Package rpc defines the decoding service exposed over gRPC. Messages are
// plain Go structs encoded with msgpack (see Codec).
package rpc

import (
	"fmt"
)

type AudioData struct {
	SessionToken string `msgpack:"session_token"`
	AudioID      uint32 `msgpack:"audio_id"`
	Audio        []byte `msgpack:"audio"`
}

func (m *AudioData) String() string {
	return fmt.Sprintf("AudioData{session:%s id:%d len:%d}", m.SessionToken, m.AudioID, len(m.Audio))
}

type Transcript struct {
	SessionToken string `msgpack:"session_token"`
	AudioID      uint32 `msgpack:"audio_id"`
	Text         string `msgpack:"text"`
}

func (m *Transcript) String() string {
	return fmt.Sprintf("Transcript{session:%s id:%d text:%q}", m.SessionToken, m.AudioID, m.Text)
}
