package auth

import "context"

type contextKey struct{}

// AuthContext identifies the signed-in account, its family and the member
// currently acting on this session.
type AuthContext struct {
	AccountID string
	FamilyID  string
	MemberID  string
	SessionID string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func FamilyID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.FamilyID
}

func MemberID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.MemberID
}

func AccountID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.AccountID
}
