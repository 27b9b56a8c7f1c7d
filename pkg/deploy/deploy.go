package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kswings/kswingsd/pkg/assets"
	"github.com/kswings/kswingsd/pkg/runtime"
	"github.com/kswings/kswingsd/pkg/store"
)

// MountPoint is where an instance's volume appears inside its container.
const MountPoint = "/app/data"

// Deployer orchestrates the deployment pipeline: volume setup, state
// transitions, image pull, container creation and background
// provisioning.
type Deployer struct {
	Log *logrus.Entry

	Runtime    runtime.API
	Store      *store.Store
	Assets     *assets.Fetcher
	VolumesDir string
}

// NewDeployer wires a deployer over the shared runtime client, store
// and fetcher.
func NewDeployer(log *logrus.Entry, rt runtime.API, st *store.Store, fetcher *assets.Fetcher, volumesDir string) *Deployer {
	return &Deployer{
		Log:        log,
		Runtime:    rt,
		Store:      st,
		Assets:     fetcher,
		VolumesDir: volumesDir,
	}
}

// Deployment is a created-but-not-yet-provisioned instance, handed back
// once the caller can be acknowledged. Provision finishes the job in
// the background.
type Deployment struct {
	ID          string
	ContainerID string
	VolumePath  string
	PrimaryPort int
	Env         []string

	vars    map[string]string
	scripts []assets.InstallScript
	disk    int64
	d       *Deployer
}

// Result is the early-acknowledgement payload.
type Result struct {
	Message     string   `json:"message"`
	Env         []string `json:"env"`
	VolumeID    string   `json:"volumeId"`
	ContainerID string   `json:"containerId"`
}

// Ack renders the acknowledgement for this deployment.
func (dep *Deployment) Ack() Result {
	return Result{
		Message:     "Instance is being installed",
		Env:         dep.Env,
		VolumeID:    dep.ID,
		ContainerID: dep.ContainerID,
	}
}

// Create runs the synchronous half of the pipeline: validation, volume
// setup, the INSTALLING commit, image pull and container creation. On
// success the container id is known and the caller can be acknowledged;
// Provision picks up from there. Any failure after the INSTALLING
// commit leaves the record FAILED.
func (d *Deployer) Create(ctx context.Context, req CreateRequest) (*Deployment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	vars, err := req.parseVariables()
	if err != nil {
		return nil, err
	}

	primaryPort := req.primaryPort()
	env := req.buildEnv(vars, primaryPort)
	volumePath := filepath.Join(d.VolumesDir, req.ID)

	if err := os.MkdirAll(volumePath, 0o755); err != nil {
		return nil, err
	}

	if err := d.Store.Update(req.ID, store.Record{State: store.StateInstalling, DiskLimit: req.Disk}); err != nil {
		return nil, err
	}

	if err := d.pull(ctx, req.Image); err != nil {
		d.fail(req.ID, "", req.Disk)
		return nil, err
	}

	created, err := d.Runtime.CreateContainer(ctx, runtime.CreateContainerOptions{
		Name: req.ID,
		Config: &runtime.ContainerConfig{
			Image:        req.Image,
			Cmd:          req.Cmd,
			Env:          env,
			ExposedPorts: req.exposedPorts(),
			Tty:          true,
			OpenStdin:    true,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
		},
		HostConfig: &runtime.HostConfig{
			Binds:        []string{volumePath + ":" + MountPoint},
			PortBindings: req.PortBindings,
			Memory:       req.Memory * units.MiB,
			CPUCount:     req.CPU,
			NetworkMode:  defaultNetworkMode(),
		},
	})
	if err != nil {
		d.fail(req.ID, "", req.Disk)
		return nil, err
	}

	// The INSTALLING record now carries the container id so state polls
	// can surface it while provisioning runs.
	if err := d.Store.Update(req.ID, store.Record{State: store.StateInstalling, ContainerID: created.ID, DiskLimit: req.Disk}); err != nil {
		d.fail(req.ID, created.ID, req.Disk)
		return nil, err
	}

	return &Deployment{
		ID:          req.ID,
		ContainerID: created.ID,
		VolumePath:  volumePath,
		PrimaryPort: primaryPort,
		Env:         env,
		vars:        vars,
		scripts:     req.Scripts.Install,
		disk:        req.Disk,
		d:           d,
	}, nil
}

// Provision is the asynchronous half: install scripts, variable
// rewrite, start, READY commit. Failures land in the state record
// only, since the caller was already acknowledged.
func (dep *Deployment) Provision(ctx context.Context, runScripts bool) {
	d := dep.d
	log := d.Log.WithField("instance", dep.ID)

	if runScripts && len(dep.scripts) > 0 {
		vars := dep.provisioningVars()
		d.Assets.DownloadInstallScripts(ctx, dep.scripts, vars, dep.VolumePath)
		if err := d.Assets.ReplaceVariables(dep.VolumePath, vars); err != nil {
			log.WithError(err).Error("variable rewrite failed")
			dep.fail()
			return
		}
	}

	if err := d.Runtime.StartContainer(ctx, dep.ContainerID); err != nil {
		log.WithError(err).Error("container failed to start")
		dep.fail()
		return
	}

	if err := d.Store.Update(dep.ID, store.Record{State: store.StateReady, ContainerID: dep.ContainerID, DiskLimit: dep.disk}); err != nil {
		log.WithError(err).Error("state commit failed")
		return
	}
	log.Info("instance ready")
}

// provisioningVars is the substitution set for install scripts: the
// request's own variables plus the derived ones.
func (dep *Deployment) provisioningVars() map[string]string {
	vars := make(map[string]string, len(dep.vars)+4)
	for key, value := range dep.vars {
		vars[key] = value
	}
	vars["primary_port"] = strconv.Itoa(dep.PrimaryPort)
	vars["container_name"] = shortID(dep.ContainerID)
	vars["timestamp"] = strconv.FormatInt(time.Now().Unix(), 10)
	vars["random_string"] = uuid.NewString()
	return vars
}

// fail flips the record to FAILED. By provisioning time the record
// already carries the container id and quota, so only the state moves.
func (dep *Deployment) fail() {
	if err := dep.d.Store.SetState(dep.ID, store.StateFailed); err != nil {
		dep.d.Log.WithError(err).Errorf("could not record failure for %s", dep.ID)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Delete tears an instance down: stop if running, remove the container,
// drop the state record, delete the volume. A vanished container is
// tolerated so half-deleted instances can be deleted again.
func (d *Deployer) Delete(ctx context.Context, id string) error {
	record, ok, err := d.Store.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return &RequestError{Message: fmt.Sprintf("unknown instance %s", id)}
	}

	if record.ContainerID != "" {
		if err := d.removeContainer(ctx, record.ContainerID); err != nil {
			return err
		}
	}
	if err := d.Store.Remove(id); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(d.VolumesDir, id))
}

// Redeploy replaces an instance's container, keeping its volume. The
// returned deployment still needs Provision; reinstalls pass
// runScripts=true there to re-run install scripts against the volume.
func (d *Deployer) Redeploy(ctx context.Context, id, oldContainerID string, req CreateRequest) (*Deployment, error) {
	req.ID = id
	if err := req.validate(); err != nil {
		return nil, err
	}

	if oldContainerID != "" {
		if err := d.removeContainer(ctx, oldContainerID); err != nil {
			return nil, err
		}
	}
	return d.Create(ctx, req)
}

// Edit applies new resource limits to a live instance. The container
// keeps running; only limits and the stored disk quota change.
func (d *Deployer) Edit(ctx context.Context, id string, req EditRequest) error {
	record, ok, err := d.Store.Get(id)
	if err != nil {
		return err
	}
	if !ok || record.ContainerID == "" {
		return &RequestError{Message: fmt.Sprintf("unknown instance %s", id)}
	}

	if req.Memory > 0 || req.CPU > 0 {
		update := runtime.UpdateConfig{}
		if req.Memory > 0 {
			update.Memory = req.Memory * units.MiB
			// swap must not undercut memory; -1 leaves it unlimited
			update.MemorySwap = -1
		}
		if req.CPU > 0 {
			update.NanoCPUs = req.CPU * 1e9
		}
		if err := d.Runtime.UpdateContainer(ctx, record.ContainerID, update); err != nil {
			return err
		}
	}

	if req.Disk > 0 {
		record.DiskLimit = req.Disk
		if err := d.Store.Update(id, record); err != nil {
			return err
		}
	}
	return nil
}

// pull fetches the image and drains its progress stream, logging each
// status line at debug level.
func (d *Deployer) pull(ctx context.Context, image string) error {
	stream, err := d.Runtime.PullImage(ctx, image)
	if err != nil {
		return err
	}
	defer stream.Close()

	_, err = runtime.FollowProgress(stream, func(p runtime.PullProgress) {
		if p.Status != "" {
			d.Log.WithField("image", image).Debug(p.Status)
		}
	})
	return err
}

func (d *Deployer) removeContainer(ctx context.Context, containerID string) error {
	details, err := d.Runtime.InspectContainer(ctx, containerID)
	if err != nil {
		if runtime.IsErrNotFound(err) {
			return nil
		}
		return err
	}
	if details.IsRunning() {
		if err := d.Runtime.StopContainer(ctx, containerID, nil); err != nil {
			return err
		}
	}
	if err := d.Runtime.RemoveContainer(ctx, containerID, true); err != nil && !runtime.IsErrNotFound(err) {
		return err
	}
	return nil
}

// fail commits a FAILED record with whatever container id is known.
func (d *Deployer) fail(id, containerID string, disk int64) {
	if err := d.Store.Update(id, store.Record{State: store.StateFailed, ContainerID: containerID, DiskLimit: disk}); err != nil {
		d.Log.WithError(err).Errorf("could not record failure for %s", id)
	}
}
