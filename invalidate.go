package raypipe

// ShaderUpdated drops everything built from the shader identified by
// handle. It is called by the asset hot-reload system.
//
// If the shader is a raygen, miss or callable stage, the base library and
// every specialized pipeline are dropped. Otherwise, for every material
// using the shader, its library and every pipeline containing it are
// dropped; pipelines without that material are kept as they are.
//
// Dropped objects that are still being built are disposed once their build
// finishes. The next GetPipeline schedules rebuilds.
func (m *Manager) ShaderUpdated(handle ShaderHandle) {
	removed := 0
	if m.baseReferences(handle) {
		m.base.drop()
		removed += m.dropEntries(func(Mask) bool { return true })
	}
	for slot := range m.materials {
		if !m.chars.Material(slot).References(handle) {
			continue
		}
		m.materials[slot].drop()
		removed += m.dropEntries(func(mask Mask) bool { return mask.Has(slot) })
	}
	if removed > 0 {
		Logger().Debug("invalidated specialized pipelines", "shader", handle, "removed", removed)
	}
}

func (m *Manager) baseReferences(handle ShaderHandle) bool {
	for _, s := range m.stages {
		if s.Shader == handle {
			return true
		}
	}
	return false
}
