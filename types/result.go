package types

// ConsistencyMode 提交一致性模式
type ConsistencyMode string

const (
	// WaitForEffectsCert 法定数量验证者认证 effects 后立即返回
	WaitForEffectsCert ConsistencyMode = "WaitForEffectsCert"
	// WaitForLocalExecution 额外等待结果在响应的全节点上可查询
	WaitForLocalExecution ConsistencyMode = "WaitForLocalExecution"
)

// Valid 是否为已知模式
func (m ConsistencyMode) Valid() bool {
	return m == WaitForEffectsCert || m == WaitForLocalExecution
}

// ExecutionStatus 链上执行状态
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
)

// GasSummary gas 消耗（基础单位）
type GasSummary struct {
	ComputationCost uint64 `json:"computationCost"`
	StorageCost     uint64 `json:"storageCost"`
	StorageRebate   uint64 `json:"storageRebate"`
}

// Net 净消耗（可能为负：返还大于支出）
func (g GasSummary) Net() int64 {
	return int64(g.ComputationCost) + int64(g.StorageCost) - int64(g.StorageRebate)
}

// ExecutionResult 交易最终执行结果
//
// Status 为 failure 表示交易已被网络最终确认，但被调用的逻辑中止；
// 这不是本地错误，调用方拿到的是摘要 + 失败 effects
type ExecutionResult struct {
	Digest                  Digest
	Status                  ExecutionStatus
	Error                   string // 中止原因（仅 failure）
	GasUsed                 GasSummary
	Mutated                 []ObjectRef
	Created                 []ObjectRef
	ConfirmedLocalExecution bool
	Mode                    ConsistencyMode
}

// Succeeded 是否执行成功
func (r *ExecutionResult) Succeeded() bool {
	return r != nil && r.Status == ExecutionSuccess
}

// Clone 深拷贝，避免缓存结果被调用方修改
func (r *ExecutionResult) Clone() *ExecutionResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Mutated = append([]ObjectRef(nil), r.Mutated...)
	out.Created = append([]ObjectRef(nil), r.Created...)
	return &out
}
