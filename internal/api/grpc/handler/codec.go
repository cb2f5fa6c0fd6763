package handler

import (
	"strconv"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/authkeeper-server/internal/model"
)

// Requests and responses are generic structs. Snowflake ids travel as
// decimal strings since struct numbers are float64.

func str(req *structpb.Struct, name string) string {
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func boolean(req *structpb.Struct, name string) bool {
	v, ok := req.GetFields()[name]
	if !ok {
		return false
	}
	return v.GetBoolValue()
}

func integer(req *structpb.Struct, name string) (int, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != float64(int(n.NumberValue)) {
		return 0, status.Errorf(codes.InvalidArgument, "field %q must be an integer", name)
	}
	return int(n.NumberValue), nil
}

func idField(req *structpb.Struct, name string) (int64, error) {
	n, err := strconv.ParseInt(str(req, name), 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "field %q must be a decimal id", name)
	}
	return n, nil
}

// required checks presence only; content rules belong to the services.
func required(req *structpb.Struct, names ...string) error {
	for _, name := range names {
		if str(req, name) == "" {
			return status.Errorf(codes.InvalidArgument, "field %q is required", name)
		}
	}
	return nil
}

func extraAuth(req *structpb.Struct) model.ExtraAuth {
	return model.ExtraAuth{
		Password: str(req, "current_password"),
		TOTP:     str(req, "totp"),
	}
}

func formatID(n int64) string {
	return strconv.FormatInt(n, 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func list(values []string) []any {
	out := make([]any, len(values))
	for i, s := range values {
		out[i] = s
	}
	return out
}

func respond(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func empty() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}
}

func tokensView(t model.SessionTokens) map[string]any {
	return map[string]any{
		"session_id":      formatID(t.Session.ID),
		"account_id":      formatID(t.Session.AccountID),
		"auth_secret":     t.AuthSecret,
		"main_secret":     t.MainSecret,
		"main_expires_at": formatTime(t.Session.MainExpiresAt),
		"expires_at":      formatTime(t.Session.ExpiresAt),
	}
}

func sessionView(s model.Session) map[string]any {
	return map[string]any{
		"id":           formatID(s.ID),
		"client_name":  s.Client.Name,
		"client_type":  s.Client.Type,
		"user_agent":   s.Client.UserAgent,
		"ip":           s.Client.IP,
		"refreshed_at": formatTime(s.RefreshedAt),
		"expires_at":   formatTime(s.ExpiresAt),
	}
}

func accountView(a model.Account) map[string]any {
	authenticators := make([]any, len(a.Authenticators))
	for i, au := range a.Authenticators {
		authenticators[i] = map[string]any{"id": au.ID, "name": au.Name}
	}
	view := map[string]any{
		"id":             formatID(a.ID),
		"username":       a.Username,
		"display_name":   a.DisplayName,
		"email":          a.VerifiedEmail(),
		"has_password":   a.PasswordHash != nil,
		"authenticators": authenticators,
		"recovery_codes": len(a.RecoveryCodes),
		"locked":         a.Locked,
		"child":          a.Child,
		"created_at":     formatTime(a.CreatedAt),
	}
	if a.DeleteAfter != nil {
		view["delete_after"] = formatTime(*a.DeleteAfter)
	}
	return view
}
