package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer はアクセストークンの発行者名。
const tokenIssuer = "blog-api"

const (
	// contextKeyUserID はGinコンテキストに認証済みユーザーIDを格納するキー。
	contextKeyUserID = "user_id"
	// contextKeyUsername はGinコンテキストに認証済みユーザー名を格納するキー。
	contextKeyUsername = "username"
)

// JWTClaims はアクセストークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Username はユーザー名。
	Username string `json:"username"`
}

var (
	errMissingHeader = errors.New("Authorizationヘッダーが必要です")
	errMalformed     = errors.New("Bearer トークン形式が不正です")
	errInvalidToken  = errors.New("トークンが無効です")
)

// GenerateJWT はユーザー情報からアクセストークンを生成する。
// ログイン成功時とアカウント有効化時に呼び出す。有効期限も返す。
func GenerateJWT(secret, userID, username string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID:   userID,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseJWT はトークン文字列を検証してクレームを返す。
// HS256以外のアルゴリズムで署名されたトークンは拒否する。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingHeader
	}
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		return "", errMalformed
	}
	return tokenString, nil
}

// setClaims は検証済みクレームをGinコンテキストに設定する。
func setClaims(c *gin.Context, claims *JWTClaims) {
	c.Set(contextKeyUserID, claims.UserID)
	c.Set(contextKeyUsername, claims.Username)
}

// JWTAuth はアクセストークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id" と "username" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := ParseJWT(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// JWTAuthWithQuery はJWTAuthと同じ検証を行うが、Authorizationヘッダーが無い場合は
// クエリパラメータ token を使用する。ヘッダーを設定できないWebSocketクライアント向け。
func JWTAuthWithQuery(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" || tokenString == "" {
			var err error
			tokenString, err = bearerToken(header)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
		}

		claims, err := ParseJWT(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth はトークンがあれば検証してユーザー情報を設定するGinミドルウェアを返す。
// トークンが無い、または無効な場合は匿名リクエストとして処理を続行する。
func OptionalJWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, err := bearerToken(c.GetHeader("Authorization")); err == nil {
			if claims, err := ParseJWT(secret, tokenString); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// 匿名リクエストの場合は空文字列を返す。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetUsername はGinコンテキストからユーザー名を取得する。
func GetUsername(c *gin.Context) string {
	username, _ := c.Get(contextKeyUsername)
	if name, ok := username.(string); ok {
		return name
	}
	return ""
}
