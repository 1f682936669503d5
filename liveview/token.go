package liveview

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// ProviderToken authorizes a session with its sync provider. The token is
// minted by the provider's control plane; the engine only forwards it, so the
// claims are parsed without verification.
type ProviderToken struct {
	Jwt      string
	UserId   Id
	FolderId Id
}

func ParseProviderTokenUnverified(jwt string) (*ProviderToken, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(jwt, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	providerToken := &ProviderToken{
		Jwt: jwt,
	}

	if userIdStr, ok := claims["user_id"]; ok {
		if userId, err := ParseId(userIdStr.(string)); err == nil {
			providerToken.UserId = userId
		}
	}
	if folderIdStr, ok := claims["folder_id"]; ok {
		if folderId, err := ParseId(folderIdStr.(string)); err == nil {
			providerToken.FolderId = folderId
		}
	}

	return providerToken, nil
}
