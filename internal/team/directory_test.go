package team

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clem69B/deglingos-app-sub000/internal/notify"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/internal/tasks"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type mockCognito struct {
	users     map[string]*types.UserType
	groups    map[string][]string
	deleted   []string
	groupErr  error
	listGErr  error
	listInput *cip.ListUsersInput
}

func newMockCognito() *mockCognito {
	return &mockCognito{users: map[string]*types.UserType{}, groups: map[string][]string{}}
}

func attr(name, value string) types.AttributeType {
	return types.AttributeType{Name: aws.String(name), Value: aws.String(value)}
}

func (m *mockCognito) AdminCreateUser(_ context.Context, in *cip.AdminCreateUserInput, _ ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error) {
	name := aws.ToString(in.Username)
	if _, ok := m.users[name]; ok {
		return nil, &types.UsernameExistsException{Message: aws.String("exists")}
	}
	u := &types.UserType{
		Username:       in.Username,
		Enabled:        true,
		UserStatus:     types.UserStatusTypeForceChangePassword,
		UserCreateDate: aws.Time(time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)),
		Attributes:     append([]types.AttributeType{attr("sub", "sub-"+name)}, in.UserAttributes...),
	}
	m.users[name] = u
	return &cip.AdminCreateUserOutput{User: u}, nil
}

func (m *mockCognito) AdminDeleteUser(_ context.Context, in *cip.AdminDeleteUserInput, _ ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error) {
	name := aws.ToString(in.Username)
	if _, ok := m.users[name]; !ok {
		return nil, &types.UserNotFoundException{}
	}
	delete(m.users, name)
	m.deleted = append(m.deleted, name)
	return &cip.AdminDeleteUserOutput{}, nil
}

func (m *mockCognito) AdminAddUserToGroup(_ context.Context, in *cip.AdminAddUserToGroupInput, _ ...func(*cip.Options)) (*cip.AdminAddUserToGroupOutput, error) {
	if m.groupErr != nil {
		return nil, m.groupErr
	}
	name := aws.ToString(in.Username)
	if _, ok := m.users[name]; !ok {
		return nil, &types.UserNotFoundException{}
	}
	m.groups[name] = append(m.groups[name], aws.ToString(in.GroupName))
	return &cip.AdminAddUserToGroupOutput{}, nil
}

func (m *mockCognito) AdminRemoveUserFromGroup(_ context.Context, in *cip.AdminRemoveUserFromGroupInput, _ ...func(*cip.Options)) (*cip.AdminRemoveUserFromGroupOutput, error) {
	name := aws.ToString(in.Username)
	var kept []string
	for _, g := range m.groups[name] {
		if g != aws.ToString(in.GroupName) {
			kept = append(kept, g)
		}
	}
	m.groups[name] = kept
	return &cip.AdminRemoveUserFromGroupOutput{}, nil
}

func (m *mockCognito) AdminGetUser(_ context.Context, in *cip.AdminGetUserInput, _ ...func(*cip.Options)) (*cip.AdminGetUserOutput, error) {
	u, ok := m.users[aws.ToString(in.Username)]
	if !ok {
		return nil, &types.UserNotFoundException{}
	}
	return &cip.AdminGetUserOutput{Username: u.Username, UserAttributes: u.Attributes, Enabled: u.Enabled, UserStatus: u.UserStatus, UserCreateDate: u.UserCreateDate}, nil
}

func (m *mockCognito) AdminListGroupsForUser(_ context.Context, in *cip.AdminListGroupsForUserInput, _ ...func(*cip.Options)) (*cip.AdminListGroupsForUserOutput, error) {
	if m.listGErr != nil {
		return nil, m.listGErr
	}
	out := &cip.AdminListGroupsForUserOutput{}
	for _, g := range m.groups[aws.ToString(in.Username)] {
		out.Groups = append(out.Groups, types.GroupType{GroupName: aws.String(g)})
	}
	return out, nil
}

func (m *mockCognito) ListUsers(_ context.Context, in *cip.ListUsersInput, _ ...func(*cip.Options)) (*cip.ListUsersOutput, error) {
	m.listInput = in
	out := &cip.ListUsersOutput{PaginationToken: aws.String("next")}
	for _, u := range m.users {
		out.Users = append(out.Users, *u)
	}
	return out, nil
}

type recordingWelcomer struct{ sent chan notify.Welcome }

func (r *recordingWelcomer) SendWelcome(_ context.Context, w notify.Welcome) (string, error) {
	r.sent <- w
	return "msg-1", nil
}

func newTestDirectory(mock *mockCognito) (*Directory, *records.Table[Profile], *recordingWelcomer, *tasks.Runner) {
	profiles := records.NewTable[Profile](records.NewMemoryBackend(), "user_profiles")
	welcomer := &recordingWelcomer{sent: make(chan notify.Welcome, 1)}
	runner := tasks.NewRunner(logging.Discard(), nil, time.Second)
	d := NewDirectory(mock, Options{
		UserPoolID: "eu-west-3_pool",
		LoginURL:   "https://app.example.com",
		Profiles:   profiles,
		Welcome:    welcomer,
		Tasks:      runner,
		Logger:     logging.Discard(),
	})
	return d, profiles, welcomer, runner
}

func validInput() CreateUserInput {
	return CreateUserInput{Email: " Paul@Example.com ", FirstName: "Paul", LastName: "Martin", Group: GroupAssistants}
}

func TestCreateUser(t *testing.T) {
	mock := newMockCognito()
	d, profiles, welcomer, runner := newTestDirectory(mock)

	u, err := d.CreateUser(context.Background(), validInput())
	require.NoError(t, err)
	runner.Wait()

	assert.Equal(t, "paul@example.com", u.Email)
	assert.Equal(t, "sub-paul@example.com", u.ID)
	assert.Equal(t, []string{GroupAssistants}, u.Groups)
	assert.Equal(t, []string{GroupAssistants}, mock.groups["paul@example.com"])

	p, err := profiles.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Martin", p.LastName)

	w := <-welcomer.sent
	assert.Equal(t, "paul@example.com", w.To)
	assert.Equal(t, "https://app.example.com", w.LoginURL)
}

func TestCreateUser_Validation(t *testing.T) {
	d, _, _, _ := newTestDirectory(newMockCognito())
	in := validInput()
	in.Group = "interns"
	_, err := d.CreateUser(context.Background(), in)
	assert.ErrorIs(t, err, shared.ErrValidation)

	in = validInput()
	in.Email = "not-an-email"
	_, err = d.CreateUser(context.Background(), in)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	d, _, _, runner := newTestDirectory(newMockCognito())
	_, err := d.CreateUser(context.Background(), validInput())
	require.NoError(t, err)
	runner.Wait()
	_, err = d.CreateUser(context.Background(), validInput())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateUser_GroupFailureRollsBack(t *testing.T) {
	mock := newMockCognito()
	mock.groupErr = errors.New("throttled")
	d, _, _, _ := newTestDirectory(mock)

	_, err := d.CreateUser(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, []string{"paul@example.com"}, mock.deleted)
	assert.Empty(t, mock.users)
}

func TestGetUser_GroupLookupFailureIsIgnored(t *testing.T) {
	mock := newMockCognito()
	d, _, _, runner := newTestDirectory(mock)
	_, err := d.CreateUser(context.Background(), validInput())
	require.NoError(t, err)
	runner.Wait()

	mock.listGErr = errors.New("access denied")
	u, err := d.GetUser(context.Background(), "paul@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Paul", u.FirstName)
	assert.Empty(t, u.Groups)

	_, err = d.GetUser(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGroupMembershipSyncsProfile(t *testing.T) {
	mock := newMockCognito()
	d, profiles, _, runner := newTestDirectory(mock)
	u, err := d.CreateUser(context.Background(), validInput())
	require.NoError(t, err)
	runner.Wait()

	require.NoError(t, d.AddUserToGroup(context.Background(), u.Username, GroupAdmins))
	p, err := profiles.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{GroupAssistants, GroupAdmins}, p.Groups)

	require.NoError(t, d.RemoveUserFromGroup(context.Background(), u.Username, GroupAssistants))
	p, err = profiles.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{GroupAdmins}, p.Groups)

	assert.ErrorIs(t, d.AddUserToGroup(context.Background(), u.Username, "owners"), shared.ErrValidation)
}

func TestListAndDeleteUsers(t *testing.T) {
	mock := newMockCognito()
	d, profiles, _, runner := newTestDirectory(mock)
	u, err := d.CreateUser(context.Background(), validInput())
	require.NoError(t, err)
	runner.Wait()

	users, next, err := d.ListUsers(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "next", next)
	assert.Equal(t, int32(60), aws.ToInt32(mock.listInput.Limit))

	require.NoError(t, d.DeleteUser(context.Background(), u.Username))
	_, err = profiles.Get(context.Background(), u.ID)
	assert.ErrorIs(t, err, records.ErrNotFound)

	assert.ErrorIs(t, d.DeleteUser(context.Background(), u.Username), shared.ErrNotFound)
}
