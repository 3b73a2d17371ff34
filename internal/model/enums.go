package model

type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "open"
	SessionStatusClosed SessionStatus = "closed"
)

type SenderType string

const (
	SenderVisitor SenderType = "visitor"
	SenderAdmin   SenderType = "admin"
)

func (s SenderType) Valid() bool {
	return s == SenderVisitor || s == SenderAdmin
}

func (s SessionStatus) Valid() bool {
	return s == SessionStatusOpen || s == SessionStatusClosed
}
