package rpc

// #region imports
import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region constants

const (
	serviceName  = "brain.ModelService"
	invokeMethod = "/brain.ModelService/Invoke"

	// tokensTrailer carries the tokens a failed call consumed.
	tokensTrailer = "x-brain-tokens-used"
)

// #endregion

// #region encode

func encodeRequest(req transport.Request) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"tier":       string(req.Tier),
		"prompt":     req.Prompt,
		"max_tokens": req.MaxTokens,
		"timeout_ms": req.Timeout.Milliseconds(),
	})
}

func encodeResponse(resp transport.Response) (*structpb.Struct, error) {
	fields := map[string]any{
		"text":        resp.Text,
		"tokens_used": resp.TokensUsed,
		"latency_ms":  resp.LatencyMs,
	}
	if resp.Confidence != nil {
		fields["confidence"] = *resp.Confidence
	}
	return structpb.NewStruct(fields)
}

// #endregion encode

// #region decode

func decodeRequest(s *structpb.Struct) transport.Request {
	f := s.GetFields()
	return transport.Request{
		Tier:      transport.Tier(f["tier"].GetStringValue()),
		Prompt:    f["prompt"].GetStringValue(),
		MaxTokens: int(f["max_tokens"].GetNumberValue()),
		Timeout:   time.Duration(f["timeout_ms"].GetNumberValue()) * time.Millisecond,
	}
}

func decodeResponse(s *structpb.Struct) transport.Response {
	f := s.GetFields()
	resp := transport.Response{
		Text:       f["text"].GetStringValue(),
		TokensUsed: int(f["tokens_used"].GetNumberValue()),
		LatencyMs:  int(f["latency_ms"].GetNumberValue()),
	}
	if v, ok := f["confidence"]; ok {
		c := v.GetNumberValue()
		resp.Confidence = &c
	}
	return resp
}

// #endregion decode
