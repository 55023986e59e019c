package utils

import (
	"errors"
	"strconv"
	"time"

	"messenger-sync/config"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens struct to describe tokens object.
type Tokens struct {
	Access  string
	Refresh string
}

// TokenMetadata struct to describe metadata in JWT.
type TokenMetadata struct {
	Id  string
	Otp bool
	Exp int64
}

// GenerateTokens func for generate a new Access & Refresh tokens.
func GenerateTokens(id string, otp bool) (*Tokens, error) {
	accessToken, err := generateToken(id, otp, "JWT_ACCESS_EXPIRE", "JWT_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	refreshToken, err := generateToken(id, otp, "JWT_REFRESH_EXPIRE", "JWT_REFRESH_KEY")
	if err != nil {
		return nil, err
	}

	return &Tokens{
		Access:  accessToken,
		Refresh: refreshToken,
	}, nil
}

func generateToken(id string, otp bool, expire string, key string) (string, error) {
	minutesCount, _ := strconv.Atoi(config.Config(expire))

	claims := jwt.MapClaims{
		"id":  id,
		"otp": otp,
		"exp": time.Now().Add(time.Minute * time.Duration(minutesCount)).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString([]byte(config.Config(key)))
}

func CheckAndExtractTokenMetadata(token string, key string) (*TokenMetadata, error) {
	t, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.Config(key)), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}

	id, _ := claims["id"].(string)
	otp, _ := claims["otp"].(bool)
	exp, _ := claims["exp"].(float64)
	if id == "" {
		return nil, errors.New("token has no subject")
	}

	return &TokenMetadata{
		Id:  id,
		Otp: otp,
		Exp: int64(exp),
	}, nil
}
