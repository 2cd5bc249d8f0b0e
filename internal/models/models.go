package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OtpPurpose scopes which flow may consume a code.
type OtpPurpose string

const (
	OtpPurposeRegister OtpPurpose = "register"
	OtpPurposeLogin    OtpPurpose = "login"
	OtpPurposeReset    OtpPurpose = "reset"
)

func (p OtpPurpose) Valid() bool {
	switch p {
	case OtpPurposeRegister, OtpPurposeLogin, OtpPurposeReset:
		return true
	}
	return false
}

type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Email          string             `bson:"email" json:"email"`
	PasswordHash   string             `bson:"passwordHash" json:"-"`
	College        string             `bson:"college" json:"college"`
	Stream         string             `bson:"stream" json:"stream"`
	YearOfStudying int                `bson:"yearOfStudying" json:"yearOfStudying"`
	Location       string             `bson:"location" json:"location"`
	IsVerified     bool               `bson:"isVerified" json:"isVerified"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Otp holds the digest of a single outstanding code. The plaintext code is
// only ever returned to the caller at issue time.
type Otp struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    primitive.ObjectID `bson:"userId"`
	CodeHash  string             `bson:"otp"`
	Purpose   OtpPurpose         `bson:"type"`
	ExpiresAt time.Time          `bson:"expiresAt"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
