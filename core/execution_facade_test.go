package core

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/require"

	"github.com/synnergy-labs/many-execution-host/internal/testutil"
)

func newTestFacade(t *testing.T) *ExecutionFacade {
	t.Helper()
	sandbox, err := testutil.NewSandbox()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sandbox.Cleanup() })

	db := dbm.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	store := NewMerkleStore(&InnerStorage{Version: StorageV2, DB: db}, nil)
	library := NewModuleLibrary()
	host := NewWasmHost(store, library, sandbox.Path("modules"), nil)
	return NewExecutionFacade(store, library, host, sandbox.Path("modules"))
}

func TestExecutionFacadeCreateReturnsUnusedAddress(t *testing.T) {
	facade := newTestFacade(t)
	a, err := facade.Create()
	require.NoError(t, err)
	b, err := facade.Create()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestExecutionFacadeInstallAndList(t *testing.T) {
	facade := newTestFacade(t)
	addr, err := facade.Create()
	require.NoError(t, err)

	require.NoError(t, facade.Install(addr, "pingpong", compilePingPongModule(t), nil))

	summaries, err := facade.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "pingpong", summaries[0].Name)
	require.Equal(t, []string{"ping"}, summaries[0].Endpoints)
}

func TestExecutionFacadeInstallDerivesEndpointsFromRealExports(t *testing.T) {
	facade := newTestFacade(t)
	addr, err := facade.Create()
	require.NoError(t, err)

	require.NoError(t, facade.Install(addr, "pingpong", compilePingPongModule(t), nil))

	resp, err := facade.host.CallEndpoint("ping", []byte("roundtrip"))
	require.NoError(t, err)
	require.Equal(t, []byte("roundtrip"), resp)
}

func TestExecutionFacadeInstallRejectsAlreadyInstalledAddress(t *testing.T) {
	facade := newTestFacade(t)
	addr, err := facade.Create()
	require.NoError(t, err)

	require.NoError(t, facade.Install(addr, "first", compilePingPongModule(t), nil))
	err = facade.Install(addr, "second", compilePingPongModule(t), nil)
	require.ErrorIs(t, err, ErrAddressAlreadyInstalled)
}

func TestExecutionFacadeInstallRejectsEndpointCollision(t *testing.T) {
	facade := newTestFacade(t)
	first, err := facade.Create()
	require.NoError(t, err)
	second, err := facade.Create()
	require.NoError(t, err)

	require.NoError(t, facade.Install(first, "first", compilePingPongModule(t), nil))
	err = facade.Install(second, "second", compilePingPongModule(t), nil)
	require.ErrorIs(t, err, ErrDuplicateEndpoint)
}
