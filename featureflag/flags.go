package featureflag

type Flag string

const (
	FlagDisableFieldState                Flag = "DISABLE_FIELD_STATE"
	FlagDisableParticipantJoinBroadcast  Flag = "DISABLE_PARTICIPANT_JOIN_BROADCAST"
	FlagDisableParticipantLeaveBroadcast Flag = "DISABLE_PARTICIPANT_LEAVE_BROADCAST"
	FlagDisableEntitySpawnBroadcast      Flag = "DISABLE_ENTITY_SPAWN_BROADCAST"
	FlagDisableTreeSignature             Flag = "DISABLE_TREE_SIGNATURE"
)
