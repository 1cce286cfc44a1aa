package arscparser

// Names of the framework attributes manifests use, keyed by their public
// resource identifiers. The identifiers are frozen, new releases only
// append. Unknown IDs return "" and the caller falls back to the
// document's own string pool.
var frameworkAttrNames = map[uint32]string{
	0x01010000: "theme",
	0x01010001: "label",
	0x01010002: "icon",
	0x01010003: "name",
	0x01010004: "manageSpaceActivity",
	0x01010005: "allowClearUserData",
	0x01010006: "permission",
	0x01010007: "readPermission",
	0x01010008: "writePermission",
	0x01010009: "protectionLevel",
	0x0101000a: "permissionGroup",
	0x0101000b: "sharedUserId",
	0x0101000c: "hasCode",
	0x0101000d: "persistent",
	0x0101000e: "enabled",
	0x0101000f: "debuggable",
	0x01010010: "exported",
	0x01010011: "process",
	0x01010012: "taskAffinity",
	0x01010013: "multiprocess",
	0x01010014: "finishOnTaskLaunch",
	0x01010015: "clearTaskOnLaunch",
	0x01010016: "stateNotNeeded",
	0x01010017: "excludeFromRecents",
	0x01010018: "authorities",
	0x01010019: "syncable",
	0x0101001a: "initOrder",
	0x0101001b: "grantUriPermissions",
	0x0101001c: "priority",
	0x0101001d: "launchMode",
	0x0101001e: "screenOrientation",
	0x0101001f: "configChanges",
	0x01010020: "description",
	0x01010021: "targetPackage",
	0x01010022: "handleProfiling",
	0x01010023: "functionalTest",
	0x01010024: "value",
	0x01010025: "resource",
	0x01010026: "mimeType",
	0x01010027: "scheme",
	0x01010028: "host",
	0x01010029: "port",
	0x0101002a: "path",
	0x0101002b: "pathPrefix",
	0x0101002c: "pathPattern",
	0x0101002d: "action",
	0x0101002e: "data",
	0x0101002f: "targetClass",
	0x0101020c: "minSdkVersion",
	0x0101021b: "versionCode",
	0x0101021c: "versionName",
	0x01010227: "reqTouchScreen",
	0x01010228: "reqKeyboardType",
	0x01010229: "reqHardKeyboard",
	0x0101022a: "reqNavigation",
	0x0101022b: "windowSoftInputMode",
	0x0101022d: "noHistory",
	0x0101026c: "anyDensity",
	0x01010270: "targetSdkVersion",
	0x01010271: "maxSdkVersion",
	0x01010272: "testOnly",
	0x01010280: "allowBackup",
	0x01010281: "glEsVersion",
	0x01010284: "smallScreens",
	0x01010285: "normalScreens",
	0x01010286: "largeScreens",
	0x0101028e: "required",
	0x010102b7: "installLocation",
	0x010102bd: "resizeable",
	0x010102bf: "xlargeScreens",
	0x010102d3: "hardwareAccelerated",
	0x0101035a: "largeHeap",
	0x010103af: "supportsRtl",
	0x010104ea: "extractNativeLibs",
	0x010104ec: "usesCleartextTraffic",
	0x01010527: "networkSecurityConfig",
	0x0101052c: "roundIcon",
	0x01010572: "compileSdkVersion",
	0x01010573: "compileSdkVersionCodename",
}

func getAttributeName(resID uint32) string {
	return frameworkAttrNames[resID]
}
