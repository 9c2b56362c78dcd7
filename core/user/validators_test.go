package user

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/congress/core"
)

func TestPasswordPolicy(t *testing.T) {
	require.NoError(t, SetCommonPasswords(strings.NewReader("123456\nPassword1!\n")))
	t.Cleanup(func() { _ = SetCommonPasswords(strings.NewReader("")) })

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 1234!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special char", pwd: "Abcd12345", wantTag: pwdComplexityTag},
		{name: "no upper case", pwd: "abcd1234!", wantTag: pwdComplexityTag},
		{name: "similar to name", pwd: "AdaLovelace1!", wantTag: pwdAttrSimTag},
		{name: "common", pwd: "Password1!", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "Wq8#rTz!m2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := core.Validate.Struct(SignUp{
				Name:            "Ada Lovelace",
				Email:           "ada@test.cd",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
			})
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}

			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, "password", verrs[0].Field())
			assert.Equal(t, tt.wantTag, verrs[0].Tag())
		})
	}
}

func TestNewUser_UsernameOrEmail(t *testing.T) {
	err := core.Validate.Struct(NewUser{
		Name:            "Ada Lovelace",
		Password:        "Wq8#rTz!m2",
		PasswordConfirm: "Wq8#rTz!m2",
	})

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(core.Translator)
	}
	assert.Equal(t, map[string]string{
		"username": usernameOrEmailText,
		"email":    usernameOrEmailText,
	}, fields)
}
